package telegram

import (
	"context"
	"strings"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func callbackChatID(callback *tgbotapi.CallbackQuery) int64 {
	if callback.Message != nil && callback.Message.Chat != nil {
		return callback.Message.Chat.ID
	}
	if callback.From != nil {
		return callback.From.ID
	}
	return 0
}

func callbackMessageID(callback *tgbotapi.CallbackQuery) int {
	if callback.Message != nil {
		return callback.Message.MessageID
	}
	return 0
}

// claimCallback reports whether this is the first time the callback is seen
func (b *Bot) claimCallback(callbackID string) bool {
	return b.cache.SetIfAbsent(consts.CacheKeyCallbackPrefix+callbackID, true, consts.CallbackDedupTTL)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	logger.Debug("Handling callback query", map[string]interface{}{
		"callback_data": callback.Data,
		"callback_id":   callback.ID,
	})

	if !b.claimCallback(callback.ID) {
		logger.Debug("Duplicate callback detected, skipping", map[string]interface{}{
			"callback_id":   callback.ID,
			"callback_data": callback.Data,
		})
		// still answered so the client stops its spinner
		b.answerCallback(ctx, callback, "")
		return nil
	}
	b.answerCallback(ctx, callback, "")

	if callback.From == nil {
		return nil
	}
	chatID := callbackChatID(callback)
	messageID := callbackMessageID(callback)

	user, err := b.ensureUser(ctx, callback.From)
	if err != nil {
		b.sendText(ctx, chatID, i18n.T(i18n.DetectLanguage(callback.From.LanguageCode), "error_unavailable"), nil)
		return nil
	}
	lang := langOf(user)
	b.metrics.RecordCommand(user.ID, "cb_"+callbackName(callback.Data))

	data := callback.Data
	switch {
	case data == consts.CallbackStart:
		b.showScreen(ctx, chatID, messageID, b.startScreen(user, lang))
	case data == consts.CallbackHelp:
		b.showScreen(ctx, chatID, messageID, b.helpScreen(lang))
	case data == consts.CallbackStatus:
		s, err := b.statusScreen(ctx, user, lang)
		if err != nil {
			b.replyLedgerError(ctx, chatID, lang, err)
			return nil
		}
		b.showScreen(ctx, chatID, messageID, s)
	case data == consts.CallbackSubscribe:
		b.showScreen(ctx, chatID, messageID, b.subscribeScreen(lang))
	case data == consts.CallbackLanguage:
		b.showScreen(ctx, chatID, messageID, b.languageScreen(lang))
	case strings.HasPrefix(data, consts.CallbackLangPrefix):
		return b.handleLanguageChoice(ctx, chatID, messageID, user, strings.TrimPrefix(data, consts.CallbackLangPrefix))
	case strings.HasPrefix(data, consts.CallbackPayCheckPrefix):
		return b.handlePaymentCheck(ctx, chatID, messageID, user, lang, strings.TrimPrefix(data, consts.CallbackPayCheckPrefix))
	case strings.HasPrefix(data, consts.CallbackSubPrefix):
		return b.handlePlanChoice(ctx, chatID, messageID, user, lang, strings.TrimPrefix(data, consts.CallbackSubPrefix))
	default:
		logger.Warn("Unknown callback data", map[string]interface{}{
			"user_id":       user.ID,
			"callback_data": data,
		})
	}
	return nil
}

// callbackName strips the argument from prefixed callback data for metrics
func callbackName(data string) string {
	for _, prefix := range []string{consts.CallbackLangPrefix, consts.CallbackPayCheckPrefix, consts.CallbackSubPrefix} {
		if strings.HasPrefix(data, prefix) {
			return strings.TrimSuffix(prefix, "_")
		}
	}
	return data
}

func (b *Bot) showScreen(ctx context.Context, chatID int64, messageID int, s screen) {
	b.editText(ctx, chatID, messageID, s.text, &s.markup)
}

func (b *Bot) handleLanguageChoice(ctx context.Context, chatID int64, messageID int, user *database.User, lang string) error {
	if err := b.ledger.SetPreferredLanguage(ctx, user.ID, lang); err != nil {
		b.replyLedgerError(ctx, chatID, langOf(user), err)
		return nil
	}

	logger.Info("Language changed", map[string]interface{}{
		"user_id":  user.ID,
		"language": lang,
	})
	home := homeKeyboard(lang)
	b.editText(ctx, chatID, messageID, i18n.T(lang, "language_changed"), &home)
	return nil
}
