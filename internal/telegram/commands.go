package telegram

import (
	"context"
	"strings"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/logger"
)

// parseCommand splits "/cmd@BotName a b" into "/cmd" and its arguments
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return name, fields[1:]
}

// Main command router

func (b *Bot) handleCommand(ctx context.Context, chatID int64, user *database.User, text string) error {
	name, args := parseCommand(text)
	lang := langOf(user)
	b.metrics.RecordCommand(user.ID, strings.TrimPrefix(name, "/"))

	switch name {
	case consts.CommandStart:
		s := b.startScreen(user, lang)
		b.sendText(ctx, chatID, s.text, s.markup)
	case consts.CommandHelp:
		s := b.helpScreen(lang)
		b.sendText(ctx, chatID, s.text, s.markup)
	case consts.CommandStatus:
		return b.handleStatusCommand(ctx, chatID, user, lang)
	case consts.CommandSubscribe:
		s := b.subscribeScreen(lang)
		b.sendText(ctx, chatID, s.text, s.markup)
	case consts.CommandLanguage:
		s := b.languageScreen(lang)
		b.sendText(ctx, chatID, s.text, s.markup)

	// Admin commands (implemented in commands_admin.go)
	case consts.CommandAdminStats, consts.CommandAdminUsers, consts.CommandAdminSubs,
		consts.CommandAdminDownloads, consts.CommandGrant, consts.CommandRevoke:
		return b.handleAdminCommand(ctx, chatID, user, lang, name, args)

	default:
		logger.Debug("Unknown command", map[string]interface{}{
			"user_id": user.ID,
			"command": name,
		})
		b.sendText(ctx, chatID, i18n.T(lang, "assistant_unknown"), nil)
	}
	return nil
}

func (b *Bot) handleStatusCommand(ctx context.Context, chatID int64, user *database.User, lang string) error {
	s, err := b.statusScreen(ctx, user, lang)
	if err != nil {
		b.replyLedgerError(ctx, chatID, lang, err)
		return nil
	}
	b.sendText(ctx, chatID, s.text, s.markup)
	return nil
}

// replyLedgerError tells the user a ledger read failed without details
func (b *Bot) replyLedgerError(ctx context.Context, chatID int64, lang string, err error) {
	logger.Error("Ledger operation failed", map[string]interface{}{
		"chat_id": chatID,
		"error":   err.Error(),
	})
	key := "error_generic"
	if ledger.IsUnavailable(err) {
		key = "error_unavailable"
	}
	b.sendText(ctx, chatID, i18n.T(lang, key), nil)
}
