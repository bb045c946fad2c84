package database

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps users, subscriptions and download events in process.
// It backs the bot when no Postgres DSN is configured and is used by tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[int64]*User
	subscriptions []*Subscription
	downloads     []*DownloadEvent
	nextSubID     int64
	nextEventID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]*User),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) UpsertUser(ctx context.Context, u *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := u.UpdatedAt.UTC()
	existing, ok := m.users[u.ID]
	if !ok {
		stored := &User{
			ID:        u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Language:  u.Language,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.users[u.ID] = stored
		copied := *stored
		return &copied, nil
	}

	existing.Username = u.Username
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	if !existing.LanguageExplicit {
		existing.Language = u.Language
	}
	existing.UpdatedAt = now

	copied := *existing
	return &copied, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *MemoryStore) SetUserLanguage(ctx context.Context, id int64, lang string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Language = lang
	u.LanguageExplicit = true
	u.UpdatedAt = now.UTC()
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context, limit int) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		copied := *u
		users = append(users, &copied)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (m *MemoryStore) CreateSubscription(ctx context.Context, s *Subscription) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertSubscription(s), nil
}

// insertSubscription expects m.mu held
func (m *MemoryStore) insertSubscription(s *Subscription) *Subscription {
	m.nextSubID++
	stored := *s
	stored.ID = m.nextSubID
	stored.StartAt = s.StartAt.UTC()
	stored.EndAt = s.EndAt.UTC()
	stored.CreatedAt = stored.StartAt
	m.subscriptions = append(m.subscriptions, &stored)

	copied := stored
	return &copied
}

// CreateSubscriptionOnce checks and inserts under one lock
func (m *MemoryStore) CreateSubscriptionOnce(ctx context.Context, s *Subscription) (*Subscription, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.PaymentID != "" {
		for _, existing := range m.subscriptions {
			if existing.PaymentID == s.PaymentID {
				copied := *existing
				return &copied, false, nil
			}
		}
	}
	return m.insertSubscription(s), true, nil
}

func (m *MemoryStore) LatestActiveSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Subscription
	for _, s := range m.subscriptions {
		if s.UserID != userID || s.Status != StatusActive {
			continue
		}
		if best == nil || s.EndAt.After(best.EndAt) || (s.EndAt.Equal(best.EndAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (m *MemoryStore) SubscriptionByPaymentID(ctx context.Context, paymentID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.subscriptions) - 1; i >= 0; i-- {
		if m.subscriptions[i].PaymentID == paymentID {
			copied := *m.subscriptions[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ExpireUserSubscriptions(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return m.expire(ctx, func(s *Subscription) bool { return s.UserID == userID }, now)
}

func (m *MemoryStore) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	return m.expire(ctx, func(*Subscription) bool { return true }, now)
}

func (m *MemoryStore) expire(ctx context.Context, match func(*Subscription) bool, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.subscriptions {
		if match(s) && s.IsStale(now) {
			s.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CancelSubscription(ctx context.Context, subscriptionID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subscriptions {
		if s.ID == subscriptionID && s.Status == StatusActive {
			s.Status = StatusCancelled
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

func (m *MemoryStore) ListSubscriptions(ctx context.Context, limit int) ([]*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Subscription, 0, len(m.subscriptions))
	for i := len(m.subscriptions) - 1; i >= 0; i-- {
		copied := *m.subscriptions[i]
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateDownloadEvent(ctx context.Context, e *DownloadEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	e.ID = m.nextEventID
	stored := *e
	stored.CreatedAt = e.CreatedAt.UTC()
	m.downloads = append(m.downloads, &stored)
	return nil
}

func (m *MemoryStore) CountSuccessfulDownloads(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.downloads {
		if e.UserID == userID && e.Success && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) GetGlobalStats(ctx context.Context, now, dayStart time.Time) (*GlobalStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &GlobalStats{
		TotalUsers:          int64(len(m.users)),
		SubscriptionsByTier: make(map[Tier]int64),
	}
	for _, s := range m.subscriptions {
		if s.InEffect(now) {
			stats.ActiveSubscriptions++
			stats.SubscriptionsByTier[s.Tier]++
		}
	}
	for _, e := range m.downloads {
		stats.TotalDownloads++
		if e.Success {
			stats.SuccessfulDownloads++
		}
		if !e.CreatedAt.Before(dayStart) {
			stats.DownloadsToday++
		}
	}
	return stats, nil
}

func (m *MemoryStore) DownloadsByDay(ctx context.Context, since time.Time) ([]DayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byDay := make(map[time.Time]*DayCount)
	for _, e := range m.downloads {
		if e.CreatedAt.Before(since) {
			continue
		}
		t := e.CreatedAt.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		dc, ok := byDay[day]
		if !ok {
			dc = &DayCount{Day: day}
			byDay[day] = dc
		}
		dc.Total++
		if e.Success {
			dc.Successful++
		}
	}

	out := make([]DayCount, 0, len(byDay))
	for _, dc := range byDay {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.After(out[j].Day) })
	return out, nil
}

func (m *MemoryStore) DownloadsByPlatform(ctx context.Context) ([]LabelCount, error) {
	return m.group(ctx, func(e *DownloadEvent) string { return string(e.Platform) })
}

func (m *MemoryStore) DownloadsByKind(ctx context.Context) ([]LabelCount, error) {
	return m.group(ctx, func(e *DownloadEvent) string { return string(e.MediaKind) })
}

func (m *MemoryStore) group(ctx context.Context, label func(*DownloadEvent) string) ([]LabelCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range m.downloads {
		counts[label(e)]++
	}

	out := make([]LabelCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, LabelCount{Label: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Label < out[j].Label
		}
		return out[i].Count > out[j].Count
	})
	return out, nil
}
