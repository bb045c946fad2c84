package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const maxWebhookBody = int64(65536)

// PaymentData is a completed payment the bot should turn into a subscription
type PaymentData struct {
	UserID    int64         `json:"user_id"`
	Tier      database.Tier `json:"tier"`
	SessionID string        `json:"session_id"`
	Amount    int64         `json:"amount"` // cents
	EventType string        `json:"event_type"`
}

// VerifyWebhookSignature verifies Stripe webhook signature and returns the event
func (sm *Manager) VerifyWebhookSignature(body []byte, signature string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(body, signature, sm.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}

// ProcessWebhookEvent returns PaymentData for events that complete a paid
// checkout and nil for everything else.
func (sm *Manager) ProcessWebhookEvent(event *stripe.Event) (*PaymentData, error) {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return sm.handleCheckoutPaid(event)
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		logger.Warn("Checkout not paid", map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		})
		sm.metrics.RecordPayment("not_paid")
		return nil, nil
	case "charge.refunded":
		// refunds are handled manually with /revoke
		logger.Warn("Charge refunded", map[string]interface{}{
			"event_id": event.ID,
		})
		return nil, nil
	default:
		logger.Debug("Unhandled event type", map[string]interface{}{
			"event_type": event.Type,
		})
		return nil, nil
	}
}

func (sm *Manager) handleCheckoutPaid(event *stripe.Event) (*PaymentData, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("error parsing checkout session: %w", err)
	}

	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// async methods complete first and pay later
		logger.Info("Checkout completed without payment yet", map[string]interface{}{
			"session_id":     s.ID,
			"payment_status": s.PaymentStatus,
		})
		return nil, nil
	}

	c, err := captureFromSession(&s)
	if err != nil {
		return nil, err
	}

	return &PaymentData{
		UserID:    c.UserID,
		Tier:      c.Tier,
		SessionID: c.SessionID,
		Amount:    c.Amount,
		EventType: string(event.Type),
	}, nil
}

// Applier turns a paid checkout into a subscription. It must be
// idempotent per SessionID since Stripe redelivers on any non-2xx.
type Applier func(ctx context.Context, p *PaymentData) error

// HandleWebhook verifies and decodes one webhook request, hands paid
// checkouts to apply and writes the response. A failed apply answers 500
// so Stripe retries the delivery.
func (sm *Manager) HandleWebhook(w http.ResponseWriter, r *http.Request, apply Applier) (*PaymentData, error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, fmt.Errorf("invalid HTTP method: %s", r.Method)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Error reading webhook body", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Error reading request body", http.StatusServiceUnavailable)
		return nil, err
	}

	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		sm.metrics.RecordPayment("webhook_rejected")
		http.Error(w, "Missing webhook signature", http.StatusBadRequest)
		return nil, fmt.Errorf("missing webhook signature header")
	}

	event, err := sm.VerifyWebhookSignature(body, signatureHeader)
	if err != nil {
		sm.metrics.RecordPayment("webhook_rejected")
		logger.Error("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "Webhook signature verification failed", http.StatusBadRequest)
		return nil, err
	}

	logger.Info("Stripe webhook received", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	paymentData, err := sm.ProcessWebhookEvent(event)
	if err != nil {
		logger.Error("Error processing webhook event", map[string]interface{}{
			"event_id": event.ID,
			"error":    err.Error(),
		})
		http.Error(w, "Error processing webhook", http.StatusInternalServerError)
		return nil, err
	}

	if paymentData != nil && apply != nil {
		if err := apply(r.Context(), paymentData); err != nil {
			logger.Error("Failed to apply webhook payment", map[string]interface{}{
				"user_id":    paymentData.UserID,
				"session_id": paymentData.SessionID,
				"error":      err.Error(),
			})
			http.Error(w, "Error applying payment", http.StatusInternalServerError)
			return paymentData, err
		}
		sm.metrics.RecordPayment("webhook_paid")
		logger.Info("Webhook payment applied", map[string]interface{}{
			"user_id":    paymentData.UserID,
			"tier":       paymentData.Tier,
			"session_id": paymentData.SessionID,
		})
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
	return paymentData, nil
}
