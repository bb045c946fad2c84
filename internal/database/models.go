package database

import (
	"strings"
	"time"
)

// Platform a media link was detected on
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformUnknown   Platform = "unknown"
)

// Title returns the display name used in captions
func (p Platform) Title() string {
	switch p {
	case PlatformYouTube:
		return "YouTube"
	case PlatformTikTok:
		return "TikTok"
	case PlatformInstagram:
		return "Instagram"
	default:
		return "Unknown"
	}
}

// MediaKind is what a download produced
type MediaKind string

const (
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaImageSet MediaKind = "image_set"
)

// SubscriptionStatus moves active -> expired or active -> cancelled, never back
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// User represents a Telegram user known to the bot
type User struct {
	ID               int64     `db:"id" json:"id"`
	Username         string    `db:"username" json:"username"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	Language         string    `db:"language" json:"language"`
	LanguageExplicit bool      `db:"language_explicit" json:"language_explicit"` // set by /language, never replaced by inference
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"` // last activity
}

// DisplayName prefers the full name, then the username, then the id
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "user"
}

// UserProfile carries the mutable fields refreshed on every contact
type UserProfile struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string // raw hint from the platform, e.g. "ar-SA"
}

// Subscription is one purchased (or granted) period of a paid tier
type Subscription struct {
	ID        int64              `db:"id" json:"id"`
	UserID    int64              `db:"user_id" json:"user_id"`
	Tier      Tier               `db:"tier" json:"tier"`
	StartAt   time.Time          `db:"start_at" json:"start_at"`
	EndAt     time.Time          `db:"end_at" json:"end_at"`
	Status    SubscriptionStatus `db:"status" json:"status"`
	PaymentID string             `db:"payment_id" json:"payment_id"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

// InEffect reports whether the subscription grants its tier at now
func (s *Subscription) InEffect(now time.Time) bool {
	return s.Status == StatusActive && s.EndAt.After(now)
}

// IsStale reports an active row whose period has already elapsed
func (s *Subscription) IsStale(now time.Time) bool {
	return s.Status == StatusActive && !s.EndAt.After(now)
}

// DaysRemaining rounds up so a subscription ending later today shows 1
func (s *Subscription) DaysRemaining(now time.Time) int {
	if !s.InEffect(now) {
		return 0
	}
	left := s.EndAt.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// DownloadEvent is an append-only audit record of one download attempt
type DownloadEvent struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	URL          string    `db:"url" json:"url"`
	Platform     Platform  `db:"platform" json:"platform"`
	MediaKind    MediaKind `db:"media_kind" json:"media_kind"`
	Success      bool      `db:"success" json:"success"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// GlobalStats summarises the whole bot for admins
type GlobalStats struct {
	TotalUsers          int64          `json:"total_users"`
	ActiveSubscriptions int64          `json:"active_subscriptions"`
	TotalDownloads      int64          `json:"total_downloads"`
	SuccessfulDownloads int64          `json:"successful_downloads"`
	DownloadsToday      int64          `json:"downloads_today"`
	SubscriptionsByTier map[Tier]int64 `json:"subscriptions_by_tier"`
}

// SuccessRate as a percentage, 0 when nothing was downloaded yet
func (s *GlobalStats) SuccessRate() float64 {
	if s.TotalDownloads == 0 {
		return 0
	}
	return float64(s.SuccessfulDownloads) * 100 / float64(s.TotalDownloads)
}

// DayCount is one row of the per-day download report
type DayCount struct {
	Day        time.Time `json:"day"`
	Total      int64     `json:"total"`
	Successful int64     `json:"successful"`
}

// LabelCount is one row of a grouped count (platform, media kind)
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}
