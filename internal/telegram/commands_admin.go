package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, user *database.User, lang, name string, args []string) error {
	if !b.isAdmin(user.ID) {
		logger.Warn("Non-admin tried an admin command", map[string]interface{}{
			"user_id": user.ID,
			"command": name,
		})
		b.sendText(ctx, chatID, i18n.T(lang, "error_admin_only"), nil)
		return nil
	}

	var (
		text string
		err  error
	)
	switch name {
	case consts.CommandAdminStats:
		text, err = b.adminStats(ctx, lang)
	case consts.CommandAdminUsers:
		text, err = b.adminUsers(ctx, lang)
	case consts.CommandAdminSubs:
		text, err = b.adminSubscriptions(ctx, lang)
	case consts.CommandAdminDownloads:
		text, err = b.adminDownloads(ctx, lang)
	case consts.CommandGrant:
		text, err = b.adminGrant(ctx, lang, user.ID, args)
	case consts.CommandRevoke:
		text, err = b.adminRevoke(ctx, lang, args)
	}
	if err != nil {
		b.replyLedgerError(ctx, chatID, lang, err)
		return nil
	}
	b.sendText(ctx, chatID, text, nil)
	return nil
}

func (b *Bot) adminStats(ctx context.Context, lang string) (string, error) {
	stats, err := b.ledger.Stats(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "admin_stats_title"))
	sb.WriteString(i18n.T(lang, "admin_stats_body",
		"users", stats.TotalUsers,
		"subs", stats.ActiveSubscriptions,
		"total", stats.TotalDownloads,
		"success", stats.SuccessfulDownloads,
		"rate", fmt.Sprintf("%.1f", stats.SuccessRate()),
		"today", stats.DownloadsToday,
	))
	sb.WriteString("\n\n")
	for _, tier := range database.AllTiers {
		if !tier.IsPaid() {
			continue
		}
		fmt.Fprintf(&sb, "• %s: %d\n", i18n.TierName(lang, string(tier)), stats.SubscriptionsByTier[tier])
	}
	return sb.String(), nil
}

func (b *Bot) adminUsers(ctx context.Context, lang string) (string, error) {
	users, err := b.ledger.RecentUsers(ctx, consts.AdminListLimit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "admin_users_title", "count", len(users)))
	sb.WriteString("\n\n")
	for _, u := range users {
		fmt.Fprintf(&sb, "• %s <code>%d</code> %s · %s\n",
			escape(u.DisplayName()), u.ID, u.Language, u.CreatedAt.Format(dateLayout))
	}
	return sb.String(), nil
}

func (b *Bot) adminSubscriptions(ctx context.Context, lang string) (string, error) {
	subs, err := b.ledger.RecentSubscriptions(ctx, consts.AdminListLimit)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "admin_subs_title", "count", len(subs)))
	sb.WriteString("\n\n")
	for _, s := range subs {
		fmt.Fprintf(&sb, "• <code>%d</code> %s %s → %s (%s)\n",
			s.UserID, i18n.TierName(lang, string(s.Tier)),
			s.StartAt.Format(dateLayout), s.EndAt.Format(dateLayout), s.Status)
	}
	return sb.String(), nil
}

func (b *Bot) adminDownloads(ctx context.Context, lang string) (string, error) {
	days, err := b.ledger.DownloadsByDay(ctx, consts.AdminDownloadDays)
	if err != nil {
		return "", err
	}
	platforms, err := b.ledger.DownloadsByPlatform(ctx)
	if err != nil {
		return "", err
	}
	kinds, err := b.ledger.DownloadsByKind(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "admin_downloads_title"))
	sb.WriteString("\n\n")
	for _, d := range days {
		fmt.Fprintf(&sb, "📅 %s: %d (✅ %d)\n", d.Day.Format(dateLayout), d.Total, d.Successful)
	}
	sb.WriteString(i18n.T(lang, "admin_by_platform") + "\n")
	for _, p := range platforms {
		fmt.Fprintf(&sb, "• %s: %d\n", database.Platform(p.Label).Title(), p.Count)
	}
	sb.WriteString(i18n.T(lang, "admin_by_kind") + "\n")
	for _, k := range kinds {
		fmt.Fprintf(&sb, "• %s: %d\n", k.Label, k.Count)
	}
	return sb.String(), nil
}

// adminGrant handles /grant <user_id> <tier> [days]
func (b *Bot) adminGrant(ctx context.Context, lang string, adminID int64, args []string) (string, error) {
	if len(args) < 2 || len(args) > 3 {
		return i18n.T(lang, "admin_grant_usage"), nil
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return i18n.T(lang, "admin_grant_usage"), nil
	}
	tier, err := database.ParseTier(strings.ToLower(args[1]))
	if err != nil || !tier.IsPaid() {
		return i18n.T(lang, "admin_grant_usage"), nil
	}
	days := b.subscriptionDays()
	if len(args) == 3 {
		if days, err = strconv.Atoi(args[2]); err != nil || days <= 0 {
			return i18n.T(lang, "admin_grant_usage"), nil
		}
	}

	ref := fmt.Sprintf("grant:%d:%s", adminID, uuid.NewString())
	sub, err := b.ledger.ActivateSubscription(ctx, userID, tier, days, ref)
	if err != nil {
		if ledger.IsNotFound(err) {
			return i18n.T(lang, "admin_unknown_user", "user_id", userID), nil
		}
		return "", err
	}

	logger.Info("Admin granted subscription", map[string]interface{}{
		"admin_id": adminID,
		"user_id":  userID,
		"tier":     tier,
		"days":     days,
	})
	return i18n.T(lang, "admin_grant_done",
		"tier", i18n.TierName(lang, string(tier)),
		"user_id", userID,
		"until", sub.EndAt.Format(dateLayout),
	), nil
}

// adminRevoke handles /revoke <user_id>
func (b *Bot) adminRevoke(ctx context.Context, lang string, args []string) (string, error) {
	if len(args) != 1 {
		return i18n.T(lang, "admin_revoke_usage"), nil
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return i18n.T(lang, "admin_revoke_usage"), nil
	}

	if _, err := b.ledger.CancelSubscription(ctx, userID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return i18n.T(lang, "admin_no_subscription", "user_id", userID), nil
		}
		return "", err
	}
	return i18n.T(lang, "admin_revoke_done", "user_id", userID), nil
}

func (b *Bot) subscriptionDays() int {
	if b.payments != nil {
		return b.payments.SubscriptionDays()
	}
	if b.config.SubscriptionDays > 0 {
		return b.config.SubscriptionDays
	}
	return 30
}
