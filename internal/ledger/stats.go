package ledger

import (
	"context"

	"github.com/clipbot/clipbot/internal/database"
)

func (l *Ledger) Stats(ctx context.Context) (*database.GlobalStats, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	now := l.Now()
	dayStart, _ := DayBounds(now)
	stats, err := l.store.GetGlobalStats(ctx, now, dayStart)
	if err != nil {
		return nil, l.fail("stats", err)
	}
	return stats, nil
}

func (l *Ledger) RecentUsers(ctx context.Context, limit int) ([]*database.User, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	users, err := l.store.ListUsers(ctx, limit)
	if err != nil {
		return nil, l.fail("recent_users", err)
	}
	return users, nil
}

func (l *Ledger) RecentSubscriptions(ctx context.Context, limit int) ([]*database.Subscription, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	subs, err := l.store.ListSubscriptions(ctx, limit)
	if err != nil {
		return nil, l.fail("recent_subscriptions", err)
	}
	return subs, nil
}

// DownloadsByDay covers today and the days-1 UTC days before it
func (l *Ledger) DownloadsByDay(ctx context.Context, days int) ([]database.DayCount, error) {
	if days <= 0 {
		days = 1
	}

	ctx, cancel := l.opContext(ctx)
	defer cancel()

	today, _ := DayBounds(l.Now())
	out, err := l.store.DownloadsByDay(ctx, today.AddDate(0, 0, -(days-1)))
	if err != nil {
		return nil, l.fail("downloads_by_day", err)
	}
	return out, nil
}

func (l *Ledger) DownloadsByPlatform(ctx context.Context) ([]database.LabelCount, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	out, err := l.store.DownloadsByPlatform(ctx)
	if err != nil {
		return nil, l.fail("downloads_by_platform", err)
	}
	return out, nil
}

func (l *Ledger) DownloadsByKind(ctx context.Context) ([]database.LabelCount, error) {
	ctx, cancel := l.opContext(ctx)
	defer cancel()

	out, err := l.store.DownloadsByKind(ctx)
	if err != nil {
		return nil, l.fail("downloads_by_kind", err)
	}
	return out, nil
}
