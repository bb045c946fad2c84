// Package telegram is the chat front end: it receives updates, runs the
// download flow through the gate, and renders commands and payments.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clipbot/clipbot/internal/cache"
	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/gate"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/llm"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
	"github.com/clipbot/clipbot/internal/resolver"
	"github.com/clipbot/clipbot/internal/stripe"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Sender is the part of *tgbotapi.BotAPI the bot talks through
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

// MediaResolver turns a public link into downloadable assets
type MediaResolver interface {
	Resolve(ctx context.Context, rawURL string, mode resolver.Mode) (*resolver.Result, error)
}

// Deps are the collaborators of a Bot. Payments, Assistant, Cache, Metrics
// and Gatherer are optional.
type Deps struct {
	Config    *config.Config
	Ledger    *ledger.Ledger
	Gate      *gate.Gate
	Resolver  MediaResolver
	Payments  *stripe.Manager
	Assistant *llm.Client
	Cache     *cache.Cache
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
}

type Bot struct {
	api       Sender
	config    *config.Config
	ledger    *ledger.Ledger
	gate      *gate.Gate
	resolver  MediaResolver
	payments  *stripe.Manager
	assistant *llm.Client
	cache     *cache.Cache
	metrics   *metrics.Collector
	gatherer  prometheus.Gatherer

	// Rate limiting
	globalLimiter *rate.Limiter
	limiters      *cache.Cache // per chat *rate.Limiter, dropped when idle
	userLimit     rate.Limit
	userBurst     int

	workerPool *WorkerPool
	server     *http.Server
}

func NewBot(api Sender, deps Deps) (*Bot, error) {
	switch {
	case api == nil:
		return nil, errors.New("telegram sender is required")
	case deps.Config == nil:
		return nil, errors.New("config is required")
	case deps.Ledger == nil || deps.Gate == nil:
		return nil, errors.New("ledger and gate are required")
	case deps.Resolver == nil:
		return nil, errors.New("media resolver is required")
	}

	c := deps.Cache
	if c == nil {
		c = cache.NewWithConfig(10000, 30*time.Minute, 5*time.Minute)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Bot{
		api:       api,
		config:    deps.Config,
		ledger:    deps.Ledger,
		gate:      deps.Gate,
		resolver:  deps.Resolver,
		payments:  deps.Payments,
		assistant: deps.Assistant,
		cache:     c,
		metrics:   deps.Metrics,
		gatherer:  gatherer,

		globalLimiter: rate.NewLimiter(rate.Limit(consts.GlobalSendRate), consts.GlobalSendBurst),
		limiters:      cache.NewWithConfig(100000, consts.UserLimiterIdleTTL, 5*time.Minute),
		userLimit:     rate.Limit(consts.UserSendRate),
		userBurst:     consts.UserSendBurst,
	}, nil
}

// Run feeds updates to the worker pool until ctx ends or the channel closes
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	b.workerPool = NewWorkerPool(b, DefaultWorkerPoolConfig())
	if err := b.workerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	logger.Info("Bot started", map[string]interface{}{
		"global_rate_limit": fmt.Sprintf("%d msg/sec", consts.GlobalSendRate),
		"user_rate_limit":   fmt.Sprintf("%d msg/chat/sec", consts.UserSendRate),
		"payments":          b.payments.Enabled(),
		"assistant":         b.assistant.Enabled(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(update)
		}
	}
}

func (b *Bot) dispatch(update tgbotapi.Update) {
	logger.Debug("Received update", map[string]interface{}{
		"update_id":    update.UpdateID,
		"has_message":  update.Message != nil,
		"has_callback": update.CallbackQuery != nil,
	})

	switch {
	case update.CallbackQuery != nil:
		if err := b.workerPool.SubmitCallback(update.CallbackQuery); err != nil {
			logger.Error("Failed to submit callback to worker pool", map[string]interface{}{
				"error":       err.Error(),
				"callback_id": update.CallbackQuery.ID,
			})
		}
	case update.Message != nil:
		if err := b.workerPool.SubmitMessage(update.Message); err != nil {
			logger.Error("Failed to submit message to worker pool", map[string]interface{}{
				"error":   err.Error(),
				"chat_id": update.Message.Chat.ID,
			})
		}
	}
}

// Stop drains the worker pool and shuts the HTTP server down
func (b *Bot) Stop(ctx context.Context) error {
	logger.InfoMsg("Stopping bot...")

	var errs []error
	if b.workerPool != nil {
		if err := b.workerPool.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.stopHTTPServer(ctx); err != nil {
		errs = append(errs, err)
	}
	b.limiters.Close()

	if err := errors.Join(errs...); err != nil {
		logger.Error("Error stopping bot", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	logger.InfoMsg("Bot stopped successfully")
	return nil
}

// GetWorkerPoolStats returns current worker pool statistics
func (b *Bot) GetWorkerPoolStats() map[string]interface{} {
	if b.workerPool == nil {
		return map[string]interface{}{
			"worker_pool": "not initialized",
		}
	}
	return b.workerPool.GetStats()
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.From == nil || message.Chat == nil {
		return nil
	}
	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}
	if text == "" {
		logger.Debug("Ignoring message without text", map[string]interface{}{
			"chat_id": message.Chat.ID,
		})
		return nil
	}

	user, err := b.ensureUser(ctx, message.From)
	if err != nil {
		b.sendText(ctx, message.Chat.ID, i18n.T(i18n.DetectLanguage(message.From.LanguageCode), "error_unavailable"), nil)
		return nil
	}

	if strings.HasPrefix(text, "/") {
		return b.handleCommand(ctx, message.Chat.ID, user, text)
	}
	return b.handleText(ctx, message.Chat.ID, user, text)
}

// ensureUser records the sender on every contact
func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*database.User, error) {
	b.metrics.TouchUser(from.ID)

	user, err := b.ledger.UpsertUser(ctx, database.UserProfile{
		ID:           from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	})
	if err != nil {
		logger.Error("Failed to upsert user", map[string]interface{}{
			"user_id": from.ID,
			"error":   err.Error(),
		})
		return nil, err
	}
	return user, nil
}

// langOf is the user's language, Arabic for unknown users
func langOf(user *database.User) string {
	if user == nil || !i18n.Supported(user.Language) {
		return i18n.Fallback
	}
	return user.Language
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.config.IsAdmin(userID)
}

// tierRank orders tiers from free upwards
func tierRank(t database.Tier) int {
	for i, tier := range database.AllTiers {
		if tier == t {
			return i
		}
	}
	return -1
}
