package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clipbot/clipbot/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the Stripe webhook, a health probe and Prometheus metrics
func (b *Bot) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stripe/webhook", b.handleStripeWebhook)
	mux.HandleFunc("/health", b.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(b.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// StartHTTPServer listens on the webhook port in the background
func (b *Bot) StartHTTPServer() {
	b.server = &http.Server{
		Addr:              ":" + b.config.WebhookPort,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := b.server

	go func() {
		logger.Info("HTTP server starting", map[string]interface{}{
			"port":      b.config.WebhookPort,
			"endpoints": []string{"/stripe/webhook", "/health", "/metrics"},
			"payments":  b.payments.Enabled(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

func (b *Bot) stopHTTPServer(ctx context.Context) error {
	if b.server == nil {
		return nil
	}
	return b.server.Shutdown(ctx)
}

func (b *Bot) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if !b.payments.Enabled() {
		logger.Error("Stripe webhook received but Stripe not configured", nil)
		http.Error(w, "Payments not configured", http.StatusServiceUnavailable)
		return
	}

	// HandleWebhook writes the response itself
	if _, err := b.payments.HandleWebhook(w, r, b.applyPayment); err != nil {
		logger.Warn("Stripe webhook not processed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (b *Bot) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"payments":     b.payments.Enabled(),
		"assistant":    b.assistant.Enabled(),
		"worker_pool":  b.GetWorkerPoolStats(),
		"active_users": b.metrics.ActiveUsers(),
	})
}
