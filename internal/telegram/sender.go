package telegram

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// userRateLimiter returns the chat's limiter, creating it on first use.
// Every lookup pushes its idle expiry forward.
func (b *Bot) userRateLimiter(chatID int64) *rate.Limiter {
	key := strconv.FormatInt(chatID, 10)
	if v, ok := b.limiters.Get(key); ok {
		limiter := v.(*rate.Limiter)
		b.limiters.SetWithExpiry(key, limiter, consts.UserLimiterIdleTTL)
		return limiter
	}

	limiter := rate.NewLimiter(b.userLimit, b.userBurst)
	if b.limiters.SetIfAbsent(key, limiter, consts.UserLimiterIdleTTL) {
		return limiter
	}
	// lost the race to another goroutine
	if v, ok := b.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	return limiter
}

func (b *Bot) waitRateLimit(ctx context.Context, chatID int64) error {
	if err := b.globalLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("global rate limiter error: %w", err)
	}
	if err := b.userRateLimiter(chatID).Wait(ctx); err != nil {
		return fmt.Errorf("user rate limiter error: %w", err)
	}
	return nil
}

// rateLimitedSend sends a message with rate limiting
func (b *Bot) rateLimitedSend(ctx context.Context, chatID int64, msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := b.waitRateLimit(ctx, chatID); err != nil {
		return tgbotapi.Message{}, err
	}
	return b.api.Send(msg)
}

// rateLimitedRequest is for calls answering true instead of a message
func (b *Bot) rateLimitedRequest(ctx context.Context, chatID int64, req tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := b.waitRateLimit(ctx, chatID); err != nil {
		return nil, err
	}
	return b.api.Request(req)
}

func (b *Bot) rateLimitedMediaGroup(ctx context.Context, chatID int64, group tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	if err := b.waitRateLimit(ctx, chatID); err != nil {
		return nil, err
	}
	return b.api.SendMediaGroup(group)
}

// sendText sends an HTML message and returns its id, 0 on failure
func (b *Bot) sendText(ctx context.Context, chatID int64, text string, markup interface{}) int {
	msg := tgbotapi.NewMessage(chatID, clip(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := b.rateLimitedSend(ctx, chatID, msg)
	if err != nil {
		logger.Error("Failed to send message", map[string]interface{}{
			"error":   err.Error(),
			"chat_id": chatID,
		})
		return 0
	}
	return sent.MessageID
}

// editText replaces a message in place, or sends a new one when there is
// nothing to edit.
func (b *Bot) editText(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		if markup != nil {
			b.sendText(ctx, chatID, text, *markup)
		} else {
			b.sendText(ctx, chatID, text, nil)
		}
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, clip(text))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = markup
	if _, err := b.rateLimitedSend(ctx, chatID, edit); err != nil {
		logger.Error("Failed to edit message", map[string]interface{}{
			"error":      err.Error(),
			"chat_id":    chatID,
			"message_id": messageID,
		})
	}
}

func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.rateLimitedRequest(ctx, chatID, tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logger.Debug("Failed to delete message", map[string]interface{}{
			"error":      err.Error(),
			"chat_id":    chatID,
			"message_id": messageID,
		})
	}
}

func (b *Bot) answerCallback(ctx context.Context, callback *tgbotapi.CallbackQuery, text string) {
	if _, err := b.rateLimitedRequest(ctx, callbackChatID(callback), tgbotapi.NewCallback(callback.ID, text)); err != nil {
		logger.Error("Failed to answer callback query", map[string]interface{}{
			"error":       err.Error(),
			"callback_id": callback.ID,
		})
	}
}

// clip keeps text under Telegram's message size limit
func clip(text string) string {
	if utf8.RuneCountInString(text) <= consts.MaxMessageLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:consts.MaxMessageLength-1]) + "…"
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}
