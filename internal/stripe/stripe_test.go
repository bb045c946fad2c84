package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipbot/clipbot/internal/cache"
	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func init() {
	logger.InitDiscard()
}

type fakeSessions struct {
	created  []*stripe.CheckoutSessionParams
	sessions map[string]*stripe.CheckoutSession
	err      error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, params)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	s := &stripe.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.com/c/pay/" + id,
		Metadata:      params.Metadata,
		AmountTotal:   *params.LineItems[0].PriceData.UnitAmount,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
	}
	if f.sessions == nil {
		f.sessions = make(map[string]*stripe.CheckoutSession)
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("No such checkout.session")
	}
	return s, nil
}

func newTestManager(t *testing.T) (*Manager, *fakeSessions) {
	t.Helper()
	pending := cache.New()
	t.Cleanup(pending.Close)

	fake := &fakeSessions{}
	cfg := &config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: testWebhookSecret,
		BaseURL:             "https://bot.example.com/",
		SubscriptionDays:    30,
	}
	return NewManager(cfg, database.DefaultTierTable(), pending, WithSessionAPI(fake)), fake
}

func TestCreateInvoice(t *testing.T) {
	m, fake := newTestManager(t)

	inv, err := m.CreateInvoice(context.Background(), 77, database.TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", inv.ID)
	assert.Equal(t, int64(1000), inv.Amount)
	assert.Equal(t, database.TierProfessional, inv.Tier)
	assert.Contains(t, inv.URL, "checkout.stripe.com")

	require.Len(t, fake.created, 1)
	p := fake.created[0]
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *p.Mode)
	assert.Equal(t, "77", *p.ClientReferenceID)
	assert.Equal(t, "77", p.Metadata["user_id"])
	assert.Equal(t, "professional", p.Metadata["tier"])
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "ClipBot Professional, 30 days", *p.LineItems[0].PriceData.ProductData.Name)
	assert.True(t, strings.HasPrefix(*p.SuccessURL, "https://bot.example.com/payment-success"))

	id, ok := m.PendingInvoice(77, database.TierProfessional)
	require.True(t, ok)
	assert.Equal(t, inv.ID, id)

	_, ok = m.PendingInvoice(77, database.TierBasic)
	assert.False(t, ok)

	m.ForgetInvoice(77, database.TierProfessional)
	_, ok = m.PendingInvoice(77, database.TierProfessional)
	assert.False(t, ok)
}

func TestCreateInvoiceRejectsFreeTier(t *testing.T) {
	m, fake := newTestManager(t)

	_, err := m.CreateInvoice(context.Background(), 1, database.TierFree)
	assert.ErrorIs(t, err, database.ErrInvalidTier)

	_, err = m.CreateInvoice(context.Background(), 1, database.Tier("platinum"))
	assert.ErrorIs(t, err, database.ErrInvalidTier)
	assert.Empty(t, fake.created)
}

func TestCreateInvoiceStripeFailure(t *testing.T) {
	m, fake := newTestManager(t)
	fake.err = errors.New("api down")

	_, err := m.CreateInvoice(context.Background(), 1, database.TierBasic)
	assert.Error(t, err)
	_, ok := m.PendingInvoice(1, database.TierBasic)
	assert.False(t, ok)
}

func TestDisabledManager(t *testing.T) {
	m := NewManager(&config.Config{}, nil, nil)
	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.Initialize(), ErrNotConfigured)

	_, err := m.CreateInvoice(context.Background(), 1, database.TierBasic)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = m.CaptureInvoice(context.Background(), "cs_1")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, ok := m.PendingInvoice(1, database.TierBasic)
	assert.False(t, ok)
	assert.Equal(t, 30, m.SubscriptionDays())
}

func TestCaptureInvoice(t *testing.T) {
	m, fake := newTestManager(t)
	ctx := context.Background()

	inv, err := m.CreateInvoice(ctx, 5, database.TierBasic)
	require.NoError(t, err)

	c, err := m.CaptureInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, c.Paid)

	fake.sessions[inv.ID].PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
	c, err = m.CaptureInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, c.Paid)
	assert.Equal(t, int64(5), c.UserID)
	assert.Equal(t, database.TierBasic, c.Tier)
	assert.Equal(t, int64(500), c.Amount)

	_, err = m.CaptureInvoice(ctx, "")
	assert.ErrorIs(t, err, ErrNoPendingInvoice)

	_, err = m.CaptureInvoice(ctx, "cs_missing")
	assert.Error(t, err)
}

func TestCaptureRejectsBadMetadata(t *testing.T) {
	_, err := captureFromSession(&stripe.CheckoutSession{ID: "cs_1", Metadata: map[string]string{"tier": "basic"}})
	assert.Error(t, err)

	_, err = captureFromSession(&stripe.CheckoutSession{ID: "cs_1", Metadata: map[string]string{"user_id": "1", "tier": "gold"}})
	assert.ErrorIs(t, err, database.ErrInvalidTier)
}

func checkoutEvent(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_test_1",
  "object": "event",
  "api_version": "2020-08-27",
  "created": %d,
  "type": %q,
  "data": {
    "object": {
      "id": "cs_test_paid",
      "object": "checkout.session",
      "amount_total": 1500,
      "currency": "usd",
      "client_reference_id": "42",
      "metadata": {"user_id": "42", "tier": "advanced", "payment_type": "subscription"},
      "payment_status": %q,
      "status": "complete"
    }
  }
}`, time.Now().Unix(), eventType, paymentStatus))
}

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestHandleWebhookPaidCheckout(t *testing.T) {
	m, _ := newTestManager(t)

	var applied *PaymentData
	rec := httptest.NewRecorder()
	data, err := m.HandleWebhook(rec, signedRequest(t, checkoutEvent("checkout.session.completed", "paid"), testWebhookSecret),
		func(_ context.Context, p *PaymentData) error {
			applied = p
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, data)
	assert.Equal(t, data, applied)
	assert.Equal(t, int64(42), data.UserID)
	assert.Equal(t, database.TierAdvanced, data.Tier)
	assert.Equal(t, "cs_test_paid", data.SessionID)
	assert.Equal(t, int64(1500), data.Amount)
	assert.Equal(t, "checkout.session.completed", data.EventType)
}

func TestHandleWebhookUnpaidCheckoutIsIgnored(t *testing.T) {
	m, _ := newTestManager(t)

	called := false
	rec := httptest.NewRecorder()
	data, err := m.HandleWebhook(rec, signedRequest(t, checkoutEvent("checkout.session.completed", "unpaid"), testWebhookSecret),
		func(context.Context, *PaymentData) error {
			called = true
			return nil
		})

	require.NoError(t, err)
	assert.Nil(t, data)
	assert.False(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleWebhookApplyFailureAsksForRetry(t *testing.T) {
	m, _ := newTestManager(t)

	rec := httptest.NewRecorder()
	_, err := m.HandleWebhook(rec, signedRequest(t, checkoutEvent("checkout.session.async_payment_succeeded", "paid"), testWebhookSecret),
		func(context.Context, *PaymentData) error { return errors.New("database down") })

	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleWebhookRejectsBadRequests(t *testing.T) {
	m, _ := newTestManager(t)
	payload := checkoutEvent("checkout.session.completed", "paid")

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"wrong method", httptest.NewRequest(http.MethodGet, "/stripe/webhook", nil), http.StatusMethodNotAllowed},
		{"missing signature", httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(string(payload))), http.StatusBadRequest},
		{"wrong secret", signedRequest(t, payload, "whsec_other"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			data, err := m.HandleWebhook(rec, tt.req, nil)
			assert.Error(t, err)
			assert.Nil(t, data)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestProcessWebhookEventIgnoresOtherTypes(t *testing.T) {
	m, _ := newTestManager(t)

	for _, typ := range []stripe.EventType{"checkout.session.expired", "charge.refunded", "customer.created"} {
		data, err := m.ProcessWebhookEvent(&stripe.Event{ID: "evt_1", Type: typ})
		assert.NoError(t, err)
		assert.Nil(t, data)
	}
}
