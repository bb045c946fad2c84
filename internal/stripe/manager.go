// Package stripe sells tier subscriptions through one-off Stripe Checkout
// payments and reports completed payments back to the bot.
package stripe

import (
	"errors"
	"strings"

	"github.com/clipbot/clipbot/internal/cache"
	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

var ErrNotConfigured = errors.New("payments are not configured")

// SessionAPI is the slice of the Checkout Session API the manager uses
type SessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// checkoutSessions calls the live API with the global key
type checkoutSessions struct{}

func (checkoutSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (checkoutSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// Manager handles Stripe payment integration
type Manager struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	days          int

	tiers    *database.TierTable
	pending  *cache.Cache
	sessions SessionAPI
	metrics  *metrics.Collector
}

type Option func(*Manager)

// WithSessionAPI replaces the live Checkout API, mainly for tests
func WithSessionAPI(api SessionAPI) Option {
	return func(m *Manager) { m.sessions = api }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

func NewManager(cfg *config.Config, tiers *database.TierTable, pending *cache.Cache, opts ...Option) *Manager {
	if tiers == nil {
		tiers = database.DefaultTierTable()
	}
	m := &Manager{
		secretKey:     cfg.StripeSecretKey,
		webhookSecret: cfg.StripeWebhookSecret,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		days:          cfg.SubscriptionDays,
		tiers:         tiers,
		pending:       pending,
		sessions:      checkoutSessions{},
	}
	if m.days <= 0 {
		m.days = 30
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize sets the process wide API key
func (sm *Manager) Initialize() error {
	if sm.secretKey == "" {
		return ErrNotConfigured
	}

	stripe.Key = sm.secretKey
	logger.InfoMsg("Stripe initialized successfully")
	return nil
}

// Enabled reports whether checkout can be offered
func (sm *Manager) Enabled() bool {
	return sm != nil && sm.secretKey != ""
}

// SubscriptionDays is the period one payment buys
func (sm *Manager) SubscriptionDays() int {
	return sm.days
}
