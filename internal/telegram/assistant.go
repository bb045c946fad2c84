package telegram

import (
	"context"
	"time"

	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/llm"
	"github.com/clipbot/clipbot/internal/logger"
)

const assistantTimeout = 20 * time.Second

// handleText routes free text: links go to the downloader, the rest to the
// assistant or a canned reply.
func (b *Bot) handleText(ctx context.Context, chatID int64, user *database.User, text string) error {
	lang := langOf(user)
	a := llm.AnalyzeMessage(text)

	logger.Debug("Message analyzed", map[string]interface{}{
		"user_id":    user.ID,
		"intent":     a.Intent,
		"platform":   a.Platform,
		"confidence": a.Confidence,
	})

	if a.Intent == llm.IntentDownload {
		b.metrics.RecordCommand(user.ID, "download")
		return b.handleDownload(ctx, chatID, user, lang, a)
	}
	b.metrics.RecordCommand(user.ID, "text_"+string(a.Intent))

	if b.assistant.Enabled() {
		if reply, ok := b.smartReply(ctx, user, lang, text); ok {
			b.sendText(ctx, chatID, escape(reply), nil)
			return nil
		}
	}

	switch a.Intent {
	case llm.IntentHelp:
		s := b.helpScreen(lang)
		b.sendText(ctx, chatID, s.text, s.markup)
	case llm.IntentGreeting:
		b.sendText(ctx, chatID, i18n.T(lang, "assistant_greeting"), mainMenuKeyboard(lang))
	case llm.IntentQuestion:
		b.sendText(ctx, chatID, i18n.T(lang, "assistant_question"), nil)
	default:
		b.sendText(ctx, chatID, i18n.T(lang, "assistant_unknown"), nil)
	}
	return nil
}

// smartReply asks the model, falling back silently on any failure
func (b *Bot) smartReply(ctx context.Context, user *database.User, lang, text string) (string, bool) {
	rc := llm.ReplyContext{Lang: lang}
	if d, err := b.gate.Evaluate(ctx, user.ID, b.ledger.Now()); err == nil {
		rc.Tier = d.Tier
		rc.DownloadsToday = d.Used
		rc.Limit = d.Limit
	}
	if v, ok := b.cache.Get(lastErrorKey(user.ID)); ok {
		rc.LastError, _ = v.(string)
	}

	ctx, cancel := context.WithTimeout(ctx, assistantTimeout)
	defer cancel()
	reply, err := b.assistant.SmartReply(ctx, text, rc)
	if err != nil {
		logger.Warn("Assistant reply failed, using canned text", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return "", false
	}
	return clip(reply), true
}
