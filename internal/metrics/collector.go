package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds every Prometheus metric the bot exports. A nil
// *Collector is valid and records nothing.
type Collector struct {
	gateDecisions        *prometheus.CounterVec
	downloadsTotal       *prometheus.CounterVec
	ledgerErrors         *prometheus.CounterVec
	subscriptionsTotal   *prometheus.CounterVec
	paymentsTotal        *prometheus.CounterVec
	commandsTotal        *prometheus.CounterVec
	resolveDuration      *prometheus.HistogramVec
	queueDepth           *prometheus.GaugeVec
	reservationsInFlight prometheus.Gauge
	activeUsersGauge     prometheus.Gauge

	mu          sync.Mutex
	activeUsers map[int64]time.Time
}

// NewCollector registers on the default registry
func NewCollector() *Collector {
	return NewCollectorWithRegistry(nil)
}

// NewCollectorWithRegistry registers on the given registry, or the default
// one when registry is nil. Tests pass a fresh prometheus.NewRegistry().
func NewCollectorWithRegistry(registry prometheus.Registerer) *Collector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Collector{
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_gate_decisions_total",
				Help: "Request gate decisions by outcome and tier",
			},
			[]string{"decision", "tier"},
		),

		downloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_downloads_total",
				Help: "Recorded download attempts",
			},
			[]string{"platform", "media_kind", "status"},
		),

		ledgerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_ledger_errors_total",
				Help: "Entitlement ledger storage failures by operation",
			},
			[]string{"op"},
		),

		subscriptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_subscriptions_total",
				Help: "Subscription state changes",
			},
			[]string{"tier", "event"},
		),

		paymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_payments_total",
				Help: "Payment provider interactions",
			},
			[]string{"event"},
		),

		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipbot_commands_total",
				Help: "Bot commands processed",
			},
			[]string{"command"},
		),

		resolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clipbot_resolve_duration_seconds",
				Help:    "Time spent resolving media links",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"platform", "outcome"},
		),

		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clipbot_worker_queue_depth",
				Help: "Items waiting in the worker pool queues",
			},
			[]string{"queue"},
		),

		reservationsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "clipbot_reservations_in_flight",
				Help: "Admitted downloads not yet completed",
			},
		),

		activeUsersGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "clipbot_active_users",
				Help: "Users seen in the last five minutes",
			},
		),

		activeUsers: make(map[int64]time.Time),
	}
}

// RecordGateDecision counts allow, deny and unavailable outcomes
func (c *Collector) RecordGateDecision(decision, tier string) {
	if c == nil {
		return
	}
	c.gateDecisions.WithLabelValues(decision, tier).Inc()
}

func (c *Collector) RecordDownload(platform, mediaKind string, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	c.downloadsTotal.WithLabelValues(platform, mediaKind, status).Inc()
}

func (c *Collector) RecordLedgerError(op string) {
	if c == nil {
		return
	}
	c.ledgerErrors.WithLabelValues(op).Inc()
}

// RecordSubscription counts activated, cancelled and expired transitions
func (c *Collector) RecordSubscription(tier, event string) {
	if c == nil {
		return
	}
	c.subscriptionsTotal.WithLabelValues(tier, event).Inc()
}

func (c *Collector) RecordPayment(event string) {
	if c == nil {
		return
	}
	c.paymentsTotal.WithLabelValues(event).Inc()
}

func (c *Collector) RecordCommand(userID int64, command string) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(command).Inc()
	c.TouchUser(userID)
}

func (c *Collector) ObserveResolve(platform, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.resolveDuration.WithLabelValues(platform, outcome).Observe(d.Seconds())
}

func (c *Collector) SetQueueDepth(queue string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (c *Collector) ReservationAcquired() {
	if c == nil {
		return
	}
	c.reservationsInFlight.Inc()
}

func (c *Collector) ReservationReleased() {
	if c == nil {
		return
	}
	c.reservationsInFlight.Dec()
}

// TouchUser marks a user active and refreshes the active users gauge
func (c *Collector) TouchUser(userID int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.activeUsers[userID] = now

	cutoff := now.Add(-5 * time.Minute)
	for id, lastSeen := range c.activeUsers {
		if lastSeen.Before(cutoff) {
			delete(c.activeUsers, id)
		}
	}
	c.activeUsersGauge.Set(float64(len(c.activeUsers)))
}

// ActiveUsers returns how many users were seen in the last five minutes
func (c *Collector) ActiveUsers() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activeUsers)
}
