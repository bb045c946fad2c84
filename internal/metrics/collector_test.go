package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollectorWithRegistry(reg), reg
}

func TestGateDecisions(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordGateDecision("allow", "free")
	c.RecordGateDecision("allow", "free")
	c.RecordGateDecision("deny", "basic")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.gateDecisions.WithLabelValues("allow", "free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gateDecisions.WithLabelValues("deny", "basic")))
}

func TestDownloadsByStatus(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDownload("youtube", "video", true)
	c.RecordDownload("youtube", "video", false)
	c.RecordDownload("youtube", "video", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.downloadsTotal.WithLabelValues("youtube", "video", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.downloadsTotal.WithLabelValues("youtube", "video", "failure")))
}

func TestReservationsGauge(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ReservationAcquired()
	c.ReservationAcquired()
	c.ReservationReleased()

	assert.Equal(t, 1.0, testutil.ToFloat64(c.reservationsInFlight))
}

func TestActiveUsers(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordCommand(1, "/start")
	c.RecordCommand(2, "/status")
	c.RecordCommand(1, "/help")

	assert.Equal(t, 2, c.ActiveUsers())
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeUsersGauge))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsTotal.WithLabelValues("/help")))
}

func TestRegistryExposesMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	c.RecordLedgerError("count_downloads")
	c.ObserveResolve("tiktok", "ok", 1500*time.Millisecond)
	c.SetQueueDepth("messages", 3)
	c.RecordSubscription("basic", "activated")
	c.RecordPayment("checkout_created")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"clipbot_ledger_errors_total",
		"clipbot_resolve_duration_seconds",
		"clipbot_worker_queue_depth",
		"clipbot_subscriptions_total",
		"clipbot_payments_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector

	c.RecordGateDecision("allow", "free")
	c.RecordDownload("youtube", "video", true)
	c.ReservationAcquired()
	c.TouchUser(1)
	assert.Equal(t, 0, c.ActiveUsers())
}
