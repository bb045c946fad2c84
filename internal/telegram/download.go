package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/gate"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/llm"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/clipbot/clipbot/internal/resolver"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleDownload runs one link through the gate, the resolver and back to
// the chat. Only admitted requests are ever recorded.
func (b *Bot) handleDownload(ctx context.Context, chatID int64, user *database.User, lang string, a llm.Analysis) error {
	if len(a.URLs) == 0 {
		b.sendText(ctx, chatID, i18n.T(lang, "error_no_url"), nil)
		return nil
	}
	url := a.URLs[0]
	if a.Platform == database.PlatformUnknown {
		b.sendText(ctx, chatID, i18n.T(lang, "error_invalid_url"), nil)
		return nil
	}

	reservation, decision, err := b.gate.Admit(ctx, user.ID, b.ledger.Now())
	if err != nil {
		if !ledger.IsUnavailable(err) {
			// invalid tier config or a vanished user, not a transient outage
			logger.Error("Gate rejected download", map[string]interface{}{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			b.sendText(ctx, chatID, i18n.T(lang, "error_generic"), nil)
			return nil
		}
		logger.Error("Gate unavailable, download refused", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		b.sendText(ctx, chatID, i18n.T(lang, "error_unavailable"), nil)
		return nil
	}
	if !decision.Allowed() {
		logger.Info("Daily limit reached", map[string]interface{}{
			"user_id": user.ID,
			"tier":    decision.Tier,
			"limit":   decision.Limit,
			"used":    decision.Used,
		})
		b.sendText(ctx, chatID, i18n.T(lang, "error_limit_reached", "used", decision.Used, "limit", decision.Limit), nil)
		return nil
	}
	// no-op once completed
	defer reservation.Release(ctx)

	mode := resolver.ModeAuto
	kind := database.MediaVideo
	if a.WantsAudio {
		mode = resolver.ModeAudio
		kind = database.MediaAudio
	}

	logger.Info("Download admitted", map[string]interface{}{
		"user_id":  user.ID,
		"platform": a.Platform,
		"mode":     mode,
		"decision": decision.String(),
	})
	statusID := b.sendText(ctx, chatID, i18n.T(lang, "download_processing"), nil)

	result, err := b.resolver.Resolve(ctx, url, mode)
	if err != nil {
		if ctx.Err() != nil {
			// shutting down, the reservation is released without a record
			return ctx.Err()
		}
		b.failDownload(ctx, chatID, statusID, user, lang, reservation, gate.Outcome{
			URL: url, Platform: a.Platform, MediaKind: kind, ErrorMessage: err.Error(),
		}, b.resolveErrorText(lang, err))
		return nil
	}

	if err := b.deliver(ctx, chatID, statusID, lang, result); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.failDownload(ctx, chatID, statusID, user, lang, reservation, gate.Outcome{
			URL: url, Platform: result.Platform, MediaKind: result.Kind, ErrorMessage: err.Error(),
		}, i18n.T(lang, "error_generic"))
		return nil
	}

	reservation.Complete(ctx, gate.Outcome{
		URL:       url,
		Platform:  result.Platform,
		MediaKind: result.Kind,
		Success:   true,
	})
	b.deleteMessage(ctx, chatID, statusID)

	after, err := b.gate.Evaluate(ctx, user.ID, b.ledger.Now())
	if err != nil {
		logger.Warn("Could not compute remaining downloads", map[string]interface{}{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		return nil
	}
	b.sendText(ctx, chatID, i18n.T(lang, "download_success", "remaining", after.Remaining()), nil)
	b.maybeSuggestUpgrade(ctx, chatID, user.ID, lang, after)
	return nil
}

// failDownload records a failed attempt and shows the user text in place
// of the processing notice.
func (b *Bot) failDownload(ctx context.Context, chatID int64, statusID int, user *database.User, lang string, res *gate.Reservation, outcome gate.Outcome, text string) {
	res.Complete(ctx, outcome)
	b.cache.SetWithExpiry(lastErrorKey(user.ID), outcome.ErrorMessage, consts.LastErrorTTL)

	logger.Warn("Download failed", map[string]interface{}{
		"user_id":  user.ID,
		"platform": outcome.Platform,
		"error":    outcome.ErrorMessage,
	})
	b.editText(ctx, chatID, statusID, text, nil)
}

func lastErrorKey(userID int64) string {
	return fmt.Sprintf("%s%d", consts.CacheKeyLastErrorPrefix, userID)
}

// resolveErrorText picks the friendliest message for a resolver failure
func (b *Bot) resolveErrorText(lang string, err error) string {
	switch resolver.ErrorKindOf(err) {
	case resolver.KindUnsupported:
		return i18n.T(lang, "error_invalid_url")
	case resolver.KindNoMedia:
		return i18n.T(lang, "error_no_media")
	case resolver.KindUnavailable:
		return i18n.T(lang, "error_network")
	}

	msg := err.Error()
	var re *resolver.ResolveError
	if errors.As(err, &re) && re.Message != "" {
		msg = re.Message
	}
	return i18n.T(lang, llm.FriendlyErrorKey(msg), "error", escape(msg))
}

// deliver sends the resolved media, replacing the processing notice with
// progress text on the way.
func (b *Bot) deliver(ctx context.Context, chatID int64, statusID int, lang string, result *resolver.Result) error {
	if len(result.Assets) == 0 {
		return errors.New("resolved result has no assets")
	}
	caption := i18n.T(lang, "download_from", "platform", result.Platform.Title())

	switch result.Kind {
	case database.MediaAudio:
		b.editText(ctx, chatID, statusID, i18n.T(lang, "download_sending_audio"), nil)
		audio := tgbotapi.NewAudio(chatID, tgbotapi.FileURL(result.Assets[0].URL))
		audio.Caption = caption
		_, err := b.rateLimitedSend(ctx, chatID, audio)
		return err

	case database.MediaImageSet:
		b.editText(ctx, chatID, statusID, i18n.T(lang, "download_sending_images", "count", len(result.Assets)), nil)
		return b.sendImageSet(ctx, chatID, lang, result)

	default:
		b.editText(ctx, chatID, statusID, i18n.T(lang, "download_sending_video"), nil)
		video := tgbotapi.NewVideo(chatID, tgbotapi.FileURL(result.Assets[0].URL))
		video.Caption = caption
		video.SupportsStreaming = true
		_, err := b.rateLimitedSend(ctx, chatID, video)
		return err
	}
}

// sendImageSet sends photos as media groups of at most ten. A trailing
// single photo goes out on its own since groups need two items.
func (b *Bot) sendImageSet(ctx context.Context, chatID int64, lang string, result *resolver.Result) error {
	total := len(result.Assets)
	for start := 0; start < total; start += consts.MediaGroupMaxItems {
		end := start + consts.MediaGroupMaxItems
		if end > total {
			end = total
		}

		if end-start == 1 {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(result.Assets[start].URL))
			photo.Caption = imageCaption(lang, start+1, total, result.Platform)
			if _, err := b.rateLimitedSend(ctx, chatID, photo); err != nil {
				return err
			}
			continue
		}

		media := make([]interface{}, 0, end-start)
		for i := start; i < end; i++ {
			item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(result.Assets[i].URL))
			item.Caption = imageCaption(lang, i+1, total, result.Platform)
			media = append(media, item)
		}
		if _, err := b.rateLimitedMediaGroup(ctx, chatID, tgbotapi.NewMediaGroup(chatID, media)); err != nil {
			return fmt.Errorf("media group %d-%d: %w", start+1, end, err)
		}
	}
	return nil
}

func imageCaption(lang string, current, total int, platform database.Platform) string {
	return i18n.T(lang, "download_image_count", "current", current, "total", total, "platform", platform.Title())
}

// maybeSuggestUpgrade offers a bigger tier to frequent users, once a day
func (b *Bot) maybeSuggestUpgrade(ctx context.Context, chatID, userID int64, lang string, d gate.Decision) {
	key, tier := llm.Suggestion(d.Used)
	if key == "" || tierRank(tier) <= tierRank(d.Tier) {
		return
	}
	dedup := fmt.Sprintf("%s%d:%s", consts.CacheKeySuggestPrefix, userID, tier)
	if !b.cache.SetIfAbsent(dedup, true, consts.SuggestionTTL) {
		return
	}

	def := b.ledger.Tiers().MustGet(tier)
	b.sendText(ctx, chatID, i18n.T(lang, key,
		"tier", i18n.TierName(lang, string(tier)),
		"price", priceLabel(def),
		"limit", def.DailyLimit,
	), nil)
}
