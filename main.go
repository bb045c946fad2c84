package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipbot/clipbot/internal/cache"
	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/gate"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/llm"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
	"github.com/clipbot/clipbot/internal/resolver"
	"github.com/clipbot/clipbot/internal/stripe"
	"github.com/clipbot/clipbot/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	expireInterval  = time.Hour
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("ClipBot is starting", map[string]interface{}{
		"log_level":    cfg.LogLevel,
		"has_database": cfg.HasDatabaseConfig(),
		"has_redis":    cfg.HasRedisConfig(),
		"has_stripe":   cfg.HasStripeConfig(),
		"has_llm":      cfg.HasLLMConfig(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Bot error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	collector := metrics.NewCollector()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	tiers, err := database.NewTierTable(cfg.Tiers)
	if err != nil {
		return fmt.Errorf("invalid tier configuration: %w", err)
	}
	l := ledger.New(store, tiers, ledger.Config{Timeout: cfg.StorageTimeout, Metrics: collector})

	gateCfg, closeRedis, err := gateConfig(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeRedis.Close()
	g := gate.New(l, gateCfg)

	shared := cache.New()
	defer shared.Close()

	payments := stripe.NewManager(cfg, tiers, shared, stripe.WithMetrics(collector))
	if payments.Enabled() {
		if err := payments.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize Stripe: %w", err)
		}
	}

	assistant := llm.NewClient(cfg)
	defer assistant.Close()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logger.Info("Authorized on Telegram", map[string]interface{}{
		"username": api.Self.UserName,
	})

	bot, err := telegram.NewBot(api, telegram.Deps{
		Config:    cfg,
		Ledger:    l,
		Gate:      g,
		Resolver:  resolver.NewClientFromConfig(cfg, collector),
		Payments:  payments,
		Assistant: assistant,
		Cache:     shared,
		Metrics:   collector,
	})
	if err != nil {
		return err
	}

	bot.StartHTTPServer()
	go expireLoop(ctx, l, expireInterval)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	logger.InfoMsg("🎬 Ready to fetch videos!")
	runErr := bot.Run(ctx, updates)
	api.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := bot.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// openStore picks Postgres when a DSN is set and the in-memory store
// otherwise.
func openStore(cfg *config.Config) (ledger.Store, io.Closer, error) {
	if !cfg.HasDatabaseConfig() {
		logger.Warn("No database configured, state is kept in memory only", nil)
		mem := database.NewMemoryStore()
		return mem, mem, nil
	}

	db, err := database.NewDB(cfg.PostgreDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, db, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// gateConfig shares the gate's locks and reservations through Redis when
// one is configured, so several bot instances enforce one quota.
func gateConfig(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (gate.Config, io.Closer, error) {
	gc := gate.Config{Metrics: collector}
	if !cfg.HasRedisConfig() {
		return gc, nopCloser{}, nil
	}

	rdb, err := cache.NewRedisClient(ctx, cfg)
	if err != nil {
		return gc, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	gc.Locker = cache.NewRedisLocker(rdb, 0)
	gc.Reservations = cache.NewRedisReservations(rdb)

	logger.Info("Gate uses Redis", map[string]interface{}{
		"addr": cfg.RedisAddr,
	})
	return gc, rdb, nil
}

// expireLoop reclassifies elapsed subscriptions until ctx ends
func expireLoop(ctx context.Context, l *ledger.Ledger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := l.ExpireStale(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Subscription sweep failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
