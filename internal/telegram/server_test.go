package telegram

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

func withMetrics(reg *prometheus.Registry) envOption {
	return func(d *Deps, _ *ledger.Store) {
		d.Metrics = metrics.NewCollectorWithRegistry(reg)
		d.Gatherer = reg
	}
}

func signedWebhook(t *testing.T, userID int64, tier database.Tier) *http.Request {
	t.Helper()
	payload := []byte(fmt.Sprintf(`{
  "id": "evt_test_1",
  "object": "event",
  "api_version": "2020-08-27",
  "created": %d,
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_webhook",
      "object": "checkout.session",
      "amount_total": 1500,
      "currency": "usd",
      "client_reference_id": "%d",
      "metadata": {"user_id": "%d", "tier": %q},
      "payment_status": "paid",
      "status": "complete"
    }
  }
}`, time.Now().Unix(), userID, userID, tier))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.bot.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["payments"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, withMetrics(reg))
	env.send(t, testUserID, testLink)

	rec := httptest.NewRecorder()
	env.bot.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `clipbot_gate_decisions_total{decision="allow",tier="free"}`)
	assert.Contains(t, string(body), `clipbot_downloads_total{media_kind="video",platform="youtube",status="success"} 1`)
}

func TestWebhookWithoutPayments(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.bot.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader("{}")))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookActivatesSubscription(t *testing.T) {
	env := newTestEnv(t, withPayments(&fakeSessions{}))
	env.send(t, testUserID, "/start")

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		env.bot.Handler().ServeHTTP(rec, signedWebhook(t, testUserID, database.TierAdvanced))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tier, err := env.ledger.GetEffectiveTier(env.ctx, testUserID, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, database.TierAdvanced, tier)

	subs, err := env.ledger.RecentSubscriptions(env.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, subs, 1, "redelivered webhooks apply once")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, withPayments(&fakeSessions{}))

	req := signedWebhook(t, testUserID, database.TierBasic)
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	env.bot.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopWithoutServer(t *testing.T) {
	env := newTestEnv(t)
	assert.NoError(t, env.bot.stopHTTPServer(env.ctx))
}
