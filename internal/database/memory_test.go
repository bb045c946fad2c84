package database

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertKeepsExplicitLanguage(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	u, err := m.UpsertUser(ctx, &User{ID: 1, FirstName: "Sam", Language: "en", UpdatedAt: t0})
	require.NoError(t, err)
	assert.Equal(t, "en", u.Language)
	assert.Equal(t, t0, u.CreatedAt)

	require.NoError(t, m.SetUserLanguage(ctx, 1, "ar", t0))

	u, err = m.UpsertUser(ctx, &User{ID: 1, FirstName: "Samuel", Language: "en", UpdatedAt: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "ar", u.Language)
	assert.Equal(t, "Samuel", u.FirstName)
	assert.Equal(t, t0, u.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), u.UpdatedAt)
}

func TestMemoryStore_SetLanguageUnknownUser(t *testing.T) {
	m := NewMemoryStore()
	assert.ErrorIs(t, m.SetUserLanguage(context.Background(), 99, "en", time.Now()), ErrUserNotFound)
	_, err := m.GetUser(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryStore_LatestActivePicksLatestEnd(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := m.CreateSubscription(ctx, &Subscription{UserID: 1, Tier: TierAdvanced, StartAt: now, EndAt: now.AddDate(0, 0, 5), Status: StatusActive})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now.AddDate(0, 0, 30), Status: StatusActive})
	require.NoError(t, err)
	_, err = m.CreateSubscription(ctx, &Subscription{UserID: 2, Tier: TierProfessional, StartAt: now, EndAt: now.AddDate(0, 0, 90), Status: StatusActive})
	require.NoError(t, err)

	s, err := m.LatestActiveSubscription(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, TierBasic, s.Tier)

	s, err = m.LatestActiveSubscription(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMemoryStore_ExpireAndCancel(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	old, _ := m.CreateSubscription(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now.AddDate(0, 0, -40), EndAt: now.AddDate(0, 0, -10), Status: StatusActive})
	cur, _ := m.CreateSubscription(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now.AddDate(0, 0, 30), Status: StatusActive})

	n, err := m.ExpireUserSubscriptions(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	subs, err := m.ListSubscriptions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, cur.ID, subs[0].ID)
	assert.Equal(t, StatusActive, subs[0].Status)
	assert.Equal(t, old.ID, subs[1].ID)
	assert.Equal(t, StatusExpired, subs[1].Status)

	require.NoError(t, m.CancelSubscription(ctx, cur.ID))
	// cancelled is terminal
	assert.ErrorIs(t, m.CancelSubscription(ctx, cur.ID), ErrSubscriptionNotFound)
	// expired rows cannot be cancelled either
	assert.ErrorIs(t, m.CancelSubscription(ctx, old.ID), ErrSubscriptionNotFound)

	n, err = m.ExpireSubscriptions(ctx, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "cancelled rows never become expired")
}

func TestMemoryStore_CountSuccessfulDownloadsWindow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	events := []*DownloadEvent{
		{UserID: 1, Success: true, CreatedAt: day.Add(-time.Second)},
		{UserID: 1, Success: true, CreatedAt: day},
		{UserID: 1, Success: false, CreatedAt: day.Add(time.Hour)},
		{UserID: 1, Success: true, CreatedAt: day.Add(24*time.Hour - time.Second)},
		{UserID: 1, Success: true, CreatedAt: day.Add(24 * time.Hour)},
		{UserID: 2, Success: true, CreatedAt: day.Add(time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, m.CreateDownloadEvent(ctx, e))
	}

	n, err := m.CountSuccessfulDownloads(ctx, 1, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemoryStore_Stats(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	today := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

	for id := int64(1); id <= 3; id++ {
		_, err := m.UpsertUser(ctx, &User{ID: id, UpdatedAt: now.Add(time.Duration(id) * time.Minute)})
		require.NoError(t, err)
	}
	_, _ = m.CreateSubscription(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now.AddDate(0, 0, 30), Status: StatusActive})
	_, _ = m.CreateSubscription(ctx, &Subscription{UserID: 2, Tier: TierBasic, StartAt: now.AddDate(0, 0, -60), EndAt: now.AddDate(0, 0, -30), Status: StatusActive})

	add := func(p Platform, k MediaKind, ok bool, at time.Time) {
		require.NoError(t, m.CreateDownloadEvent(ctx, &DownloadEvent{UserID: 1, Platform: p, MediaKind: k, Success: ok, CreatedAt: at}))
	}
	add(PlatformYouTube, MediaVideo, true, now)
	add(PlatformYouTube, MediaAudio, true, now.Add(-24*time.Hour))
	add(PlatformTikTok, MediaVideo, false, now.Add(-48*time.Hour))

	stats, err := m.GetGlobalStats(ctx, now, today)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.ActiveSubscriptions)
	assert.Equal(t, int64(1), stats.SubscriptionsByTier[TierBasic])
	assert.Equal(t, int64(3), stats.TotalDownloads)
	assert.Equal(t, int64(2), stats.SuccessfulDownloads)
	assert.Equal(t, int64(1), stats.DownloadsToday)

	days, err := m.DownloadsByDay(ctx, today.AddDate(0, 0, -6))
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, today, days[0].Day)
	assert.Equal(t, int64(0), days[2].Successful)

	platforms, err := m.DownloadsByPlatform(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{"youtube", 2}, {"tiktok", 1}}, platforms)

	kinds, err := m.DownloadsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{"video", 2}, {"audio", 1}}, kinds)

	users, err := m.ListUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(3), users[0].ID)
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	m := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.CountSuccessfulDownloads(ctx, 1, time.Now(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscriptionHelpers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Subscription{Status: StatusActive, EndAt: now.Add(36 * time.Hour)}

	assert.True(t, s.InEffect(now))
	assert.Equal(t, 2, s.DaysRemaining(now))

	s.EndAt = now
	assert.False(t, s.InEffect(now), "end == now is not in effect")
	assert.True(t, s.IsStale(now))
	assert.Equal(t, 0, s.DaysRemaining(now))

	s.Status = StatusCancelled
	s.EndAt = now.Add(time.Hour)
	assert.False(t, s.InEffect(now))
	assert.False(t, s.IsStale(now))
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
	assert.Equal(t, "@ada", (&User{Username: "ada"}).DisplayName())
	assert.Equal(t, "user", (&User{}).DisplayName())
}

func TestMemoryStore_CreateSubscriptionOnce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now.AddDate(0, 0, 30), Status: StatusActive, PaymentID: "cs_1"}

	var wg sync.WaitGroup
	var created int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.CreateSubscriptionOnce(ctx, sub)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created)

	// rows without a payment id are never merged
	_, ok, err := m.CreateSubscriptionOnce(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now, Status: StatusActive})
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = m.CreateSubscriptionOnce(ctx, &Subscription{UserID: 1, Tier: TierBasic, StartAt: now, EndAt: now, Status: StatusActive})
	require.NoError(t, err)
	assert.True(t, ok)

	subs, err := m.ListSubscriptions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}
