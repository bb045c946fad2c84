// Package gate decides whether a user may start another download today and
// holds the slot until the outcome is recorded.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/metrics"
)

// Ledger is the part of the entitlement ledger the gate reads and writes
type Ledger interface {
	GetEffectiveTier(ctx context.Context, userID int64, now time.Time) (database.Tier, error)
	CountDownloadsToday(ctx context.Context, userID int64, now time.Time) (int, error)
	RecordDownload(ctx context.Context, event database.DownloadEvent)
	Tiers() *database.TierTable
}

type Verdict string

const (
	Allow Verdict = "allow"
	Deny  Verdict = "deny"
)

// Decision is the outcome of a quota check
type Decision struct {
	Verdict Verdict
	Tier    database.Tier
	Limit   int
	Used    int // successful downloads today plus in-flight reservations
}

func (d Decision) Allowed() bool {
	return d.Verdict == Allow
}

// Remaining never goes below zero, even if the limit was lowered after
// downloads were counted.
func (d Decision) Remaining() int {
	if d.Used >= d.Limit {
		return 0
	}
	return d.Limit - d.Used
}

// Outcome describes a finished download attempt
type Outcome struct {
	URL          string
	Platform     database.Platform
	MediaKind    database.MediaKind
	Success      bool
	ErrorMessage string
}

type Config struct {
	Locker       Locker
	Reservations Reservations
	Metrics      *metrics.Collector
}

type Gate struct {
	ledger       Ledger
	locker       Locker
	reservations Reservations
	metrics      *metrics.Collector
}

func New(l Ledger, cfg Config) *Gate {
	if cfg.Locker == nil {
		cfg.Locker = NewKeyedMutex()
	}
	if cfg.Reservations == nil {
		cfg.Reservations = NewMemoryReservations()
	}
	return &Gate{
		ledger:       l,
		locker:       cfg.Locker,
		reservations: cfg.Reservations,
		metrics:      cfg.Metrics,
	}
}

const completeLockTimeout = 10 * time.Second

func userKey(userID int64) string {
	return "gate:" + strconv.FormatInt(userID, 10)
}

// unavailable passes ledger errors through unchanged and classifies
// anything else as ledger.ErrUnavailable.
func unavailable(op string, err error) error {
	var opErr *ledger.OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &ledger.OpError{Op: op, Kind: ledger.ErrUnavailable, Err: err}
}

// Evaluate reports whether userID may download at now without changing
// anything. Any read failure is returned as ledger.ErrUnavailable; the
// caller must not download in that case.
func (g *Gate) Evaluate(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	d, err := g.decide(ctx, userID, now, 0)
	if err != nil {
		g.metrics.RecordGateDecision("unavailable", "")
		return Decision{}, err
	}
	return d, nil
}

func (g *Gate) decide(ctx context.Context, userID int64, now time.Time, pending int) (Decision, error) {
	tier, err := g.ledger.GetEffectiveTier(ctx, userID, now)
	if err != nil {
		return Decision{}, unavailable("gate_tier", err)
	}
	def, err := g.ledger.Tiers().Get(tier)
	if err != nil {
		return Decision{}, &ledger.OpError{Op: "gate_tier", Kind: ledger.ErrInvalidTier, Err: err}
	}
	used, err := g.ledger.CountDownloadsToday(ctx, userID, now)
	if err != nil {
		return Decision{}, unavailable("gate_count", err)
	}

	d := Decision{
		Verdict: Allow,
		Tier:    tier,
		Limit:   def.DailyLimit,
		Used:    used + pending,
	}
	if d.Used >= d.Limit {
		d.Verdict = Deny
	}
	return d, nil
}

// Admit evaluates under the user's lock and, on Allow, takes a reservation
// that counts against the quota until it is completed or released. The
// reservation is nil unless the decision allows the download.
func (g *Gate) Admit(ctx context.Context, userID int64, now time.Time) (*Reservation, Decision, error) {
	key := userKey(userID)

	unlock, err := g.locker.Lock(ctx, key)
	if err != nil {
		g.metrics.RecordGateDecision("unavailable", "")
		return nil, Decision{}, unavailable("gate_lock", err)
	}
	defer unlock()

	pending, err := g.reservations.Pending(ctx, key)
	if err != nil {
		g.metrics.RecordGateDecision("unavailable", "")
		return nil, Decision{}, unavailable("gate_pending", err)
	}

	d, err := g.decide(ctx, userID, now, pending)
	if err != nil {
		g.metrics.RecordGateDecision("unavailable", "")
		return nil, Decision{}, err
	}
	g.metrics.RecordGateDecision(string(d.Verdict), string(d.Tier))

	if !d.Allowed() {
		logger.Debug("Download denied", map[string]interface{}{
			"user_id": userID,
			"tier":    d.Tier,
			"limit":   d.Limit,
			"used":    d.Used,
		})
		return nil, d, nil
	}

	if err := g.reservations.Acquire(ctx, key); err != nil {
		return nil, Decision{}, unavailable("gate_reserve", err)
	}
	g.metrics.ReservationAcquired()

	return &Reservation{gate: g, userID: userID, key: key}, d, nil
}

// Reservation is one admitted download in flight
type Reservation struct {
	gate   *Gate
	userID int64
	key    string
	once   sync.Once
}

func (r *Reservation) UserID() int64 {
	return r.userID
}

// Complete records the outcome and frees the slot. Only the first call on
// a reservation has any effect. Both happen under the user's lock so a
// concurrent Admit sees either the reservation or the event, never both.
func (r *Reservation) Complete(ctx context.Context, outcome Outcome) {
	r.once.Do(func() {
		lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completeLockTimeout)
		defer cancel()
		if unlock, err := r.gate.locker.Lock(lockCtx, r.key); err != nil {
			logger.Warn("Completing download without the gate lock", map[string]interface{}{
				"user_id": r.userID,
				"error":   err.Error(),
			})
		} else {
			defer unlock()
		}

		r.gate.ledger.RecordDownload(ctx, database.DownloadEvent{
			UserID:       r.userID,
			URL:          outcome.URL,
			Platform:     outcome.Platform,
			MediaKind:    outcome.MediaKind,
			Success:      outcome.Success,
			ErrorMessage: outcome.ErrorMessage,
		})
		r.release(ctx)
	})
}

// Release frees the slot without recording anything
func (r *Reservation) Release(ctx context.Context) {
	r.once.Do(func() {
		r.release(ctx)
	})
}

func (r *Reservation) release(ctx context.Context) {
	// the slot must be returned even if the request was cancelled
	ctx = context.WithoutCancel(ctx)
	if err := r.gate.reservations.Release(ctx, r.key); err != nil {
		logger.Warn("Failed to release download reservation", map[string]interface{}{
			"user_id": r.userID,
			"error":   err.Error(),
		})
	}
	r.gate.metrics.ReservationReleased()
}

func (d Decision) String() string {
	return fmt.Sprintf("%s tier=%s used=%d/%d", d.Verdict, d.Tier, d.Used, d.Limit)
}
