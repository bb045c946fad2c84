package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TierNames lists the tiers whose limits and prices can be overridden
var TierNames = []string{"free", "basic", "professional", "advanced"}

// TierSetting overrides one row of the tier table
type TierSetting struct {
	DailyLimit int
	PriceUSD   float64
}

type Config struct {
	TelegramBotToken string
	AdminUserID      int64

	PostgreDSN    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CobaltAPIURL string
	CobaltAPIKey string

	StripeSecretKey     string
	StripeWebhookSecret string
	BaseURL             string // used for checkout success/cancel pages
	WebhookPort         string

	LLMProvider string
	LLMEndpoint string
	LLMToken    string
	LLMModel    string

	LogLevel string
	LogDir   string

	StorageTimeout   time.Duration
	SubscriptionDays int

	// Only tiers present in the environment appear here
	Tiers map[string]TierSetting
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		PostgreDSN:    os.Getenv("POSTGRE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		CobaltAPIURL: getEnvOrDefault("COBALT_API_URL", "https://api.cobalt.tools"),
		CobaltAPIKey: os.Getenv("COBALT_API_KEY"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		BaseURL:             os.Getenv("BASE_URL"),
		WebhookPort:         getEnvOrDefault("WEBHOOK_PORT", "8080"),

		LLMProvider: os.Getenv("LLM_PROVIDER"),
		LLMEndpoint: os.Getenv("LLM_ENDPOINT"),
		LLMToken:    os.Getenv("LLM_TOKEN"),
		LLMModel:    os.Getenv("LLM_MODEL"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		LogDir:   getEnvOrDefault("LOG_DIR", "logs"),

		Tiers: make(map[string]TierSetting),
	}

	var err error
	if cfg.AdminUserID, err = getEnvInt64("ADMIN_USER_ID", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SubscriptionDays, err = getEnvInt("SUBSCRIPTION_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.StorageTimeout, err = getEnvDuration("STORAGE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if err := cfg.loadTiers(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadTiers reads TIER_<NAME>_DAILY_LIMIT and TIER_<NAME>_PRICE pairs.
// A tier only needs to be present when one of its values changes.
func (c *Config) loadTiers() error {
	for _, name := range TierNames {
		prefix := "TIER_" + strings.ToUpper(name)
		limitRaw := os.Getenv(prefix + "_DAILY_LIMIT")
		priceRaw := os.Getenv(prefix + "_PRICE")
		if limitRaw == "" && priceRaw == "" {
			continue
		}

		setting := TierSetting{DailyLimit: -1, PriceUSD: -1}
		if limitRaw != "" {
			limit, err := strconv.Atoi(limitRaw)
			if err != nil {
				return fmt.Errorf("invalid %s_DAILY_LIMIT: %w", prefix, err)
			}
			setting.DailyLimit = limit
		}
		if priceRaw != "" {
			price, err := strconv.ParseFloat(priceRaw, 64)
			if err != nil {
				return fmt.Errorf("invalid %s_PRICE: %w", prefix, err)
			}
			setting.PriceUSD = price
		}
		c.Tiers[name] = setting
	}
	return nil
}

func (c *Config) validate() error {
	required := map[string]string{
		"TELEGRAM_BOT_TOKEN": c.TelegramBotToken,
	}

	for key, value := range required {
		if value == "" {
			return fmt.Errorf("required environment variable %s is not set", key)
		}
	}

	if c.SubscriptionDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_DAYS must be positive, got %d", c.SubscriptionDays)
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", c.StorageTimeout)
	}
	for name, tier := range c.Tiers {
		if tier.DailyLimit == 0 || tier.DailyLimit < -1 {
			return fmt.Errorf("tier %s: daily limit must be positive", name)
		}
		if tier.PriceUSD < -1 {
			return fmt.Errorf("tier %s: price must not be negative", name)
		}
	}

	return nil
}

func (c *Config) HasLLMConfig() bool {
	return c.LLMProvider != "" && c.LLMEndpoint != "" && c.LLMToken != "" && c.LLMModel != ""
}

func (c *Config) HasDatabaseConfig() bool {
	return c.PostgreDSN != ""
}

func (c *Config) HasRedisConfig() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasStripeConfig() bool {
	return c.StripeSecretKey != ""
}

func (c *Config) HasAdmin() bool {
	return c.AdminUserID != 0
}

func (c *Config) IsAdmin(userID int64) bool {
	return c.HasAdmin() && c.AdminUserID == userID
}

// getEnvOrDefault returns the environment variable value or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
