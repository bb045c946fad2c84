package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// screen is a rendered page: HTML text plus its inline keyboard
type screen struct {
	text   string
	markup tgbotapi.InlineKeyboardMarkup
}

func mainMenuKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_help"), consts.CallbackHelp),
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_status"), consts.CallbackStatus),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_subscribe"), consts.CallbackSubscribe),
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_language"), consts.CallbackLanguage),
		),
	)
}

func homeKeyboard(lang string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_home"), consts.CallbackStart),
		),
	)
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(i18n.Arabic, "btn_arabic"), consts.CallbackLangPrefix+i18n.Arabic),
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(i18n.English, "btn_english"), consts.CallbackLangPrefix+i18n.English),
		),
	)
}

func (b *Bot) startScreen(user *database.User, lang string) screen {
	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "welcome_title", "name", escape(user.DisplayName())))
	sb.WriteString("\n")
	sb.WriteString(i18n.T(lang, "welcome_intro"))
	sb.WriteString(i18n.T(lang, "welcome_how_to"))
	sb.WriteString(i18n.T(lang, "welcome_commands"))
	sb.WriteString(i18n.T(lang, "welcome_types"))
	return screen{text: sb.String(), markup: mainMenuKeyboard(lang)}
}

func (b *Bot) helpScreen(lang string) screen {
	keys := []string{"help_title", "help_platforms", "help_video", "help_images", "help_audio", "help_commands", "help_notes"}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, i18n.T(lang, k))
	}
	return screen{text: strings.Join(parts, "\n"), markup: homeKeyboard(lang)}
}

func (b *Bot) languageScreen(lang string) screen {
	return screen{text: i18n.T(lang, "language_title"), markup: languageKeyboard()}
}

// featureLines renders a tier's feature keys as a bullet list
func featureLines(lang string, def database.TierDefinition) string {
	var sb strings.Builder
	for _, f := range def.Features {
		sb.WriteString("• ")
		sb.WriteString(i18n.T(lang, f, "limit", def.DailyLimit))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) statusScreen(ctx context.Context, user *database.User, lang string) (screen, error) {
	now := b.ledger.Now()
	ent, err := b.ledger.GetEntitlement(ctx, user.ID, now)
	if err != nil {
		return screen{}, err
	}
	d, err := b.gate.Evaluate(ctx, user.ID, now)
	if err != nil {
		return screen{}, err
	}

	state := i18n.T(lang, "status_inactive")
	if ent.Subscription != nil {
		state = i18n.T(lang, "status_active") +
			i18n.T(lang, "status_expires", "days", ent.Subscription.DaysRemaining(now))
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "status_title") + "\n\n")
	sb.WriteString(i18n.T(lang, "status_user", "name", escape(user.DisplayName())) + "\n")
	sb.WriteString(i18n.T(lang, "status_id", "user_id", user.ID) + "\n")
	sb.WriteString(i18n.T(lang, "status_subscription", "tier", i18n.TierName(lang, string(ent.Tier))) + "\n")
	sb.WriteString(i18n.T(lang, "status_state", "status", state) + "\n\n")
	sb.WriteString(i18n.T(lang, "status_downloads", "today", d.Used, "limit", d.Limit) + "\n")
	sb.WriteString(i18n.T(lang, "status_remaining", "remaining", d.Remaining()) + "\n\n")
	sb.WriteString(i18n.T(lang, "status_features") + "\n")
	sb.WriteString(featureLines(lang, ent.Definition))
	if ent.Tier != database.TierAdvanced {
		sb.WriteString(i18n.T(lang, "status_upgrade"))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_subscribe"), consts.CallbackSubscribe),
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_home"), consts.CallbackStart),
		),
	)
	return screen{text: sb.String(), markup: markup}, nil
}

func priceLabel(def database.TierDefinition) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", def.PriceUSD), "0"), ".")
}

func (b *Bot) subscribeScreen(lang string) screen {
	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "subscribe_title") + "\n\n")

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 4)
	for _, def := range b.ledger.Tiers().Paid() {
		name := i18n.TierName(lang, string(def.Tier))
		fmt.Fprintf(&sb, "💎 <b>%s</b> - $%s%s\n", name, priceLabel(def), i18n.T(lang, "subscribe_month"))
		sb.WriteString(featureLines(lang, def))
		sb.WriteString("\n")

		label := fmt.Sprintf("%s - $%s", name, priceLabel(def))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, consts.CallbackSubPrefix+string(def.Tier)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "btn_home"), consts.CallbackStart),
	))

	return screen{text: sb.String(), markup: tgbotapi.NewInlineKeyboardMarkup(rows...)}
}

// planHeader is the title, price and features of one tier's payment page
func planHeader(lang string, def database.TierDefinition) string {
	var sb strings.Builder
	sb.WriteString(i18n.T(lang, "subscribe_payment_title", "tier", i18n.TierName(lang, string(def.Tier))) + "\n\n")
	sb.WriteString(i18n.T(lang, "subscribe_price", "price", priceLabel(def)) + "\n\n")
	sb.WriteString(i18n.T(lang, "subscribe_features") + "\n")
	sb.WriteString(featureLines(lang, def))
	return sb.String()
}
