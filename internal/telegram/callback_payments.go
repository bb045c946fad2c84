package telegram

import (
	"context"
	"errors"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/stripe"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handlePlanChoice opens a checkout for the chosen tier, or explains how to
// subscribe when payments are not configured.
func (b *Bot) handlePlanChoice(ctx context.Context, chatID int64, messageID int, user *database.User, lang, tierName string) error {
	tier, err := database.ParseTier(tierName)
	if err != nil || !tier.IsPaid() {
		logger.Warn("Invalid plan in callback", map[string]interface{}{
			"user_id": user.ID,
			"tier":    tierName,
		})
		return nil
	}
	def := b.ledger.Tiers().MustGet(tier)
	back := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_back"), consts.CallbackSubscribe),
	)

	if !b.payments.Enabled() {
		markup := tgbotapi.NewInlineKeyboardMarkup(back)
		b.editText(ctx, chatID, messageID, planHeader(lang, def)+i18n.T(lang, "subscribe_payment_method"), &markup)
		return nil
	}

	inv, err := b.payments.CreateInvoice(ctx, user.ID, tier)
	if err != nil {
		logger.Error("Failed to create invoice", map[string]interface{}{
			"user_id": user.ID,
			"tier":    tier,
			"error":   err.Error(),
		})
		b.sendText(ctx, chatID, i18n.T(lang, "payment_error"), nil)
		return nil
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(i18n.T(lang, "btn_pay", "price", priceLabel(def)), inv.URL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_check_payment"), consts.CallbackPayCheckPrefix+string(tier)),
		),
		back,
	)
	b.editText(ctx, chatID, messageID, planHeader(lang, def)+i18n.T(lang, "subscribe_checkout"), &markup)
	return nil
}

// handlePaymentCheck activates the tier once the pending checkout is paid
func (b *Bot) handlePaymentCheck(ctx context.Context, chatID int64, messageID int, user *database.User, lang, tierName string) error {
	tier, err := database.ParseTier(tierName)
	if err != nil || !tier.IsPaid() || !b.payments.Enabled() {
		return nil
	}

	invoiceID, ok := b.payments.PendingInvoice(user.ID, tier)
	if !ok {
		b.sendText(ctx, chatID, i18n.T(lang, "payment_no_invoice"), nil)
		return nil
	}

	capture, err := b.payments.CaptureInvoice(ctx, invoiceID)
	if err != nil {
		logger.Error("Failed to capture invoice", map[string]interface{}{
			"user_id":    user.ID,
			"invoice_id": invoiceID,
			"error":      err.Error(),
		})
		b.sendText(ctx, chatID, i18n.T(lang, "payment_error"), nil)
		return nil
	}
	if !capture.Paid {
		b.sendText(ctx, chatID, i18n.T(lang, "payment_pending"), nil)
		return nil
	}
	if capture.UserID != user.ID || capture.Tier != tier {
		logger.Error("Checkout does not match the pending invoice", map[string]interface{}{
			"user_id":      user.ID,
			"tier":         tier,
			"session_user": capture.UserID,
			"session_tier": capture.Tier,
			"session_id":   capture.SessionID,
		})
		b.sendText(ctx, chatID, i18n.T(lang, "payment_error"), nil)
		return nil
	}

	err = b.applyPayment(ctx, &stripe.PaymentData{
		UserID:    capture.UserID,
		Tier:      capture.Tier,
		SessionID: capture.SessionID,
		Amount:    capture.Amount,
		EventType: "capture",
	})
	if err != nil {
		b.replyLedgerError(ctx, chatID, lang, err)
		return nil
	}
	b.deleteMessage(ctx, chatID, messageID)
	return nil
}

// applyPayment turns a paid checkout into a subscription and tells the
// user. It is shared by the payment check button and the webhook, and is
// idempotent per session id.
func (b *Bot) applyPayment(ctx context.Context, p *stripe.PaymentData) error {
	days := b.subscriptionDays()
	sub, err := b.ledger.ActivateSubscription(ctx, p.UserID, p.Tier, days, p.SessionID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, ledger.ErrInvalidTier) {
			// a retry cannot fix these, so the payment is acknowledged
			logger.Error("Payment cannot be applied", map[string]interface{}{
				"user_id":    p.UserID,
				"tier":       p.Tier,
				"session_id": p.SessionID,
				"error":      err.Error(),
			})
			return nil
		}
		return err
	}
	b.payments.ForgetInvoice(p.UserID, p.Tier)

	// only the first of capture and webhook notifies
	if !b.cache.SetIfAbsent(consts.CacheKeyPaidPrefix+p.SessionID, sub.ID, consts.PaidNoticeTTL) {
		return nil
	}

	lang := i18n.Fallback
	if u, err := b.ledger.GetUser(ctx, p.UserID); err == nil {
		lang = langOf(u)
	}
	def := b.ledger.Tiers().MustGet(p.Tier)
	b.sendText(ctx, p.UserID, i18n.T(lang, "payment_success",
		"tier", i18n.TierName(lang, string(p.Tier)),
		"days", days,
		"limit", def.DailyLimit,
	), nil)

	logger.Info("Payment applied", map[string]interface{}{
		"user_id":         p.UserID,
		"tier":            p.Tier,
		"session_id":      p.SessionID,
		"subscription_id": sub.ID,
		"source":          p.EventType,
	})
	return nil
}
