// Package ledger owns user identity, subscription state and download
// history, and answers which tier is in force for a user at an instant.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
)

// DefaultTimeout bounds every store call when none is configured
const DefaultTimeout = 5 * time.Second

// Store is the persistence the ledger needs. database.DB and
// database.MemoryStore both satisfy it.
type Store interface {
	UpsertUser(ctx context.Context, u *database.User) (*database.User, error)
	GetUser(ctx context.Context, id int64) (*database.User, error)
	SetUserLanguage(ctx context.Context, id int64, lang string, now time.Time) error
	ListUsers(ctx context.Context, limit int) ([]*database.User, error)

	CreateSubscriptionOnce(ctx context.Context, s *database.Subscription) (*database.Subscription, bool, error)
	LatestActiveSubscription(ctx context.Context, userID int64) (*database.Subscription, error)
	SubscriptionByPaymentID(ctx context.Context, paymentID string) (*database.Subscription, error)
	ExpireUserSubscriptions(ctx context.Context, userID int64, now time.Time) (int64, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
	CancelSubscription(ctx context.Context, subscriptionID int64) error
	ListSubscriptions(ctx context.Context, limit int) ([]*database.Subscription, error)

	CreateDownloadEvent(ctx context.Context, e *database.DownloadEvent) error
	CountSuccessfulDownloads(ctx context.Context, userID int64, from, to time.Time) (int, error)

	GetGlobalStats(ctx context.Context, now, dayStart time.Time) (*database.GlobalStats, error)
	DownloadsByDay(ctx context.Context, since time.Time) ([]database.DayCount, error)
	DownloadsByPlatform(ctx context.Context) ([]database.LabelCount, error)
	DownloadsByKind(ctx context.Context) ([]database.LabelCount, error)
}

// Config tunes a Ledger. Zero values select defaults.
type Config struct {
	Timeout time.Duration
	Clock   Clock
	Metrics *metrics.Collector
}

type Ledger struct {
	store   Store
	tiers   *database.TierTable
	clock   Clock
	timeout time.Duration
	metrics *metrics.Collector
}

func New(store Store, tiers *database.TierTable, cfg Config) *Ledger {
	if tiers == nil {
		tiers = database.DefaultTierTable()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Ledger{
		store:   store,
		tiers:   tiers,
		clock:   cfg.Clock,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
	}
}

// Entitlement is the tier in force and the subscription granting it
type Entitlement struct {
	Tier         database.Tier
	Definition   database.TierDefinition
	Subscription *database.Subscription // nil on the free tier
}

func (l *Ledger) Now() time.Time {
	return l.clock.Now().UTC()
}

func (l *Ledger) Tiers() *database.TierTable {
	return l.tiers
}

// opContext detaches from the caller's cancellation so a started write
// always completes, and bounds the call with the storage timeout.
func (l *Ledger) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
}

func (l *Ledger) fail(op string, err error) error {
	classified := classify(op, err)
	if IsUnavailable(classified) {
		l.metrics.RecordLedgerError(op)
	}
	return classified
}

// UpsertUser creates the user on first contact or refreshes the profile.
// The inferred language never replaces an explicit choice.
func (l *Ledger) UpsertUser(ctx context.Context, profile database.UserProfile) (*database.User, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	u, err := l.store.UpsertUser(ctx, &database.User{
		ID:        profile.ID,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Language:  i18n.DetectLanguage(profile.LanguageCode),
		UpdatedAt: l.Now(),
	})
	if err != nil {
		return nil, l.fail("upsert_user", err)
	}
	return u, nil
}

func (l *Ledger) GetUser(ctx context.Context, userID int64) (*database.User, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, l.fail("get_user", err)
	}
	return u, nil
}

// SetPreferredLanguage records an explicit language choice
func (l *Ledger) SetPreferredLanguage(ctx context.Context, userID int64, lang string) error {
	if !i18n.Supported(lang) {
		return fmt.Errorf("unsupported language %q", lang)
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.store.SetUserLanguage(ctx, userID, lang, l.Now()); err != nil {
		return l.fail("set_language", err)
	}
	return nil
}

// GetEffectiveTier returns the tier in force at now. It never writes, so
// the answer depends only on stored state and now.
func (l *Ledger) GetEffectiveTier(ctx context.Context, userID int64, now time.Time) (database.Tier, error) {
	ent, err := l.GetEntitlement(ctx, userID, now)
	if err != nil {
		return "", err
	}
	return ent.Tier, nil
}

// GetEntitlement is GetEffectiveTier plus the granting subscription
func (l *Ledger) GetEntitlement(ctx context.Context, userID int64, now time.Time) (*Entitlement, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	sub, err := l.store.LatestActiveSubscription(ctx, userID)
	if err != nil {
		return nil, l.fail("effective_tier", err)
	}

	ent := &Entitlement{Tier: database.TierFree}
	if sub != nil && sub.InEffect(now) {
		ent.Tier = sub.Tier
		ent.Subscription = sub
	}

	def, err := l.tiers.Get(ent.Tier)
	if err != nil {
		logger.Error("Tier table lookup failed", map[string]interface{}{
			"user_id": userID,
			"tier":    ent.Tier,
			"error":   err.Error(),
		})
		return nil, l.fail("effective_tier", err)
	}
	ent.Definition = def
	return ent, nil
}

// ActivateSubscription appends a new active period of tier starting now.
// A repeated paymentRef returns the subscription already created for it.
func (l *Ledger) ActivateSubscription(ctx context.Context, userID int64, tier database.Tier, days int, paymentRef string) (*database.Subscription, error) {
	if !tier.IsPaid() {
		return nil, &OpError{Op: "activate_subscription", Kind: ErrInvalidTier, Err: fmt.Errorf("tier %q cannot be purchased", tier)}
	}
	if days <= 0 {
		return nil, fmt.Errorf("subscription duration must be positive, got %d days", days)
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, l.fail("activate_subscription", err)
	}

	if paymentRef != "" {
		existing, err := l.store.SubscriptionByPaymentID(ctx, paymentRef)
		if err != nil {
			return nil, l.fail("activate_subscription", err)
		}
		if existing != nil {
			logger.Info("Payment already applied", map[string]interface{}{
				"user_id":         userID,
				"payment_ref":     paymentRef,
				"subscription_id": existing.ID,
			})
			return existing, nil
		}
	}

	now := l.Now()

	// lazy active -> expired transition; failure here does not block the purchase
	if n, err := l.store.ExpireUserSubscriptions(ctx, userID, now); err != nil {
		logger.Warn("Failed to reclassify stale subscriptions", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	} else if n > 0 {
		logger.Debug("Reclassified stale subscriptions", map[string]interface{}{
			"user_id": userID,
			"count":   n,
		})
	}

	// the store enforces one row per payment ref; a concurrent apply of the
	// same payment gets the winner's row back
	sub, created, err := l.store.CreateSubscriptionOnce(ctx, &database.Subscription{
		UserID:    userID,
		Tier:      tier,
		StartAt:   now,
		EndAt:     now.AddDate(0, 0, days),
		Status:    database.StatusActive,
		PaymentID: paymentRef,
	})
	if err != nil {
		return nil, l.fail("activate_subscription", err)
	}
	if !created {
		logger.Info("Payment already applied", map[string]interface{}{
			"user_id":         userID,
			"payment_ref":     paymentRef,
			"subscription_id": sub.ID,
		})
		return sub, nil
	}

	l.metrics.RecordSubscription(string(tier), "activated")
	logger.Info("Subscription activated", map[string]interface{}{
		"user_id":     userID,
		"tier":        tier,
		"days":        days,
		"end_at":      sub.EndAt,
		"payment_ref": paymentRef,
	})
	return sub, nil
}

// CancelSubscription cancels every subscription of the user that is in
// effect at now, returning how many were cancelled. ErrNotFound when none.
func (l *Ledger) CancelSubscription(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	now := l.Now()
	cancelled := 0
	for {
		sub, err := l.store.LatestActiveSubscription(ctx, userID)
		if err != nil {
			return cancelled, l.fail("cancel_subscription", err)
		}
		if sub == nil || !sub.InEffect(now) {
			break
		}
		if err := l.store.CancelSubscription(ctx, sub.ID); err != nil {
			return cancelled, l.fail("cancel_subscription", err)
		}
		cancelled++
		l.metrics.RecordSubscription(string(sub.Tier), "cancelled")
	}

	if cancelled == 0 {
		return 0, &OpError{Op: "cancel_subscription", Kind: ErrNotFound, Err: database.ErrSubscriptionNotFound}
	}

	logger.Info("Subscription cancelled", map[string]interface{}{
		"user_id": userID,
		"count":   cancelled,
	})
	return cancelled, nil
}

// RecordDownload appends an audit event. Failures are logged and dropped
// so the user facing flow is never interrupted.
func (l *Ledger) RecordDownload(ctx context.Context, event database.DownloadEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if event.Platform == "" {
		event.Platform = database.PlatformUnknown
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	if err := l.store.CreateDownloadEvent(ctx, &event); err != nil {
		l.metrics.RecordLedgerError("record_download")
		logger.Error("Failed to record download", map[string]interface{}{
			"user_id":  event.UserID,
			"platform": event.Platform,
			"success":  event.Success,
			"error":    err.Error(),
		})
		return
	}
	l.metrics.RecordDownload(string(event.Platform), string(event.MediaKind), event.Success)
}

// CountDownloadsToday counts successful downloads in the UTC day of now
func (l *Ledger) CountDownloadsToday(ctx context.Context, userID int64, now time.Time) (int, error) {
	start, end := DayBounds(now)

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	n, err := l.store.CountSuccessfulDownloads(ctx, userID, start, end)
	if err != nil {
		return 0, l.fail("count_downloads", err)
	}
	return n, nil
}

// ExpireStale reclassifies every elapsed active subscription. It is
// housekeeping only; GetEffectiveTier already ignores elapsed rows.
func (l *Ledger) ExpireStale(ctx context.Context) (int64, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	n, err := l.store.ExpireSubscriptions(ctx, l.Now())
	if err != nil {
		return 0, l.fail("expire_stale", err)
	}
	if n > 0 {
		logger.Info("Expired stale subscriptions", map[string]interface{}{"count": n})
	}
	return n, nil
}
