package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clipbot/clipbot/internal/logger"
	"github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
}

// NewDB opens the Postgres connection and creates the schema
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, ErrNotConfigured
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initTables(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	logger.InfoMsg("Database connection established successfully")
	return db, nil
}

// NewWithConn wraps an already opened connection without touching the schema
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	if db != nil && db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initTables(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		username VARCHAR(255) NOT NULL DEFAULT '',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		language VARCHAR(8) NOT NULL DEFAULT 'en',
		language_explicit BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		tier VARCHAR(32) NOT NULL,
		start_at TIMESTAMP WITH TIME ZONE NOT NULL,
		end_at TIMESTAMP WITH TIME ZONE NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		payment_id VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions(user_id, status, end_at DESC);
	DROP INDEX IF EXISTS idx_subscriptions_payment_id;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_payment_ref ON subscriptions(payment_id) WHERE payment_id <> '';

	CREATE TABLE IF NOT EXISTS download_events (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		platform VARCHAR(32) NOT NULL DEFAULT 'unknown',
		media_kind VARCHAR(32) NOT NULL DEFAULT 'video',
		success BOOLEAN NOT NULL DEFAULT FALSE,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_download_events_user_created ON download_events(user_id, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

const userColumns = `id, username, first_name, last_name, language, language_explicit, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Language, &u.LanguageExplicit, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// UpsertUser inserts the user or refreshes the profile fields. An explicit
// language choice survives; otherwise the supplied language replaces it.
func (db *DB) UpsertUser(ctx context.Context, u *User) (*User, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `
		INSERT INTO users (id, username, first_name, last_name, language, language_explicit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			language = CASE WHEN users.language_explicit THEN users.language ELSE EXCLUDED.language END,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	row := db.conn.QueryRowContext(ctx, query, u.ID, u.Username, u.FirstName, u.LastName, u.Language, u.UpdatedAt.UTC())
	stored, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return stored, nil
}

// GetUser returns ErrUserNotFound when the id is unknown
func (db *DB) GetUser(ctx context.Context, id int64) (*User, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	row := db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetUserLanguage stores an explicit language choice
func (db *DB) SetUserLanguage(ctx context.Context, id int64, lang string, now time.Time) error {
	if db == nil {
		return ErrNotConfigured
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET language = $2, language_explicit = TRUE, updated_at = $3 WHERE id = $1`,
		id, lang, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to set user language: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns the most recently created users first. A limit of 0
// returns every user.
func (db *DB) ListUsers(ctx context.Context, limit int) ([]*User, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const subscriptionColumns = `id, user_id, tier, start_at, end_at, status, payment_id, created_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*Subscription, error) {
	s := &Subscription{}
	var tier, status string
	if err := row.Scan(&s.ID, &s.UserID, &tier, &s.StartAt, &s.EndAt, &status, &s.PaymentID, &s.CreatedAt); err != nil {
		return nil, err
	}
	t, err := ParseTier(tier)
	if err != nil {
		return nil, err
	}
	s.Tier = t
	s.Status = SubscriptionStatus(status)
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// CreateSubscription appends a subscription row and fills in its id
func (db *DB) CreateSubscription(ctx context.Context, s *Subscription) (*Subscription, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `
		INSERT INTO subscriptions (user_id, tier, start_at, end_at, status, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $3)
		RETURNING ` + subscriptionColumns

	row := db.conn.QueryRowContext(ctx, query, s.UserID, string(s.Tier), s.StartAt.UTC(), s.EndAt.UTC(), string(s.Status), s.PaymentID)
	created, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	logger.Info("Created subscription", map[string]interface{}{
		"user_id":    created.UserID,
		"tier":       created.Tier,
		"end_at":     created.EndAt,
		"payment_id": created.PaymentID,
	})
	return created, nil
}

// CreateSubscriptionOnce inserts s unless a row already carries its payment
// id, in which case that row is returned with false. Rows without a payment
// id are always inserted.
func (db *DB) CreateSubscriptionOnce(ctx context.Context, s *Subscription) (*Subscription, bool, error) {
	if db == nil {
		return nil, false, ErrNotConfigured
	}
	if s.PaymentID == "" {
		sub, err := db.CreateSubscription(ctx, s)
		return sub, err == nil, err
	}

	query := `
		INSERT INTO subscriptions (user_id, tier, start_at, end_at, status, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $3)
		ON CONFLICT (payment_id) WHERE payment_id <> '' DO NOTHING
		RETURNING ` + subscriptionColumns

	row := db.conn.QueryRowContext(ctx, query, s.UserID, string(s.Tier), s.StartAt.UTC(), s.EndAt.UTC(), string(s.Status), s.PaymentID)
	sub, err := scanSubscription(row)
	switch {
	case err == nil:
		logger.Info("Created subscription", map[string]interface{}{
			"user_id":    sub.UserID,
			"tier":       sub.Tier,
			"end_at":     sub.EndAt,
			"payment_id": sub.PaymentID,
		})
		return sub, true, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		existing, err := db.SubscriptionByPaymentID(ctx, s.PaymentID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("subscription for payment %s conflicted but is missing", s.PaymentID)
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("failed to create subscription: %w", err)
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// LatestActiveSubscription returns the active row with the latest end,
// or nil when the user has none. Elapsed rows are returned too.
func (db *DB) LatestActiveSubscription(ctx context.Context, userID int64) (*Subscription, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
		ORDER BY end_at DESC, id DESC
		LIMIT 1`

	s, err := scanSubscription(db.conn.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active subscription: %w", err)
	}
	return s, nil
}

// SubscriptionByPaymentID finds the row created for a payment, nil if none
func (db *DB) SubscriptionByPaymentID(ctx context.Context, paymentID string) (*Subscription, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE payment_id = $1 ORDER BY id DESC LIMIT 1`
	s, err := scanSubscription(db.conn.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription by payment: %w", err)
	}
	return s, nil
}

// ExpireUserSubscriptions marks the user's elapsed active rows expired
func (db *DB) ExpireUserSubscriptions(ctx context.Context, userID int64, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrNotConfigured
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'expired' WHERE user_id = $1 AND status = 'active' AND end_at <= $2`,
		userID, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire user subscriptions: %w", err)
	}
	return result.RowsAffected()
}

// ExpireSubscriptions marks every elapsed active row expired
func (db *DB) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	if db == nil {
		return 0, ErrNotConfigured
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'expired' WHERE status = 'active' AND end_at <= $1`,
		now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	return result.RowsAffected()
}

// CancelSubscription moves an active row to cancelled
func (db *DB) CancelSubscription(ctx context.Context, subscriptionID int64) error {
	if db == nil {
		return ErrNotConfigured
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE subscriptions SET status = 'cancelled' WHERE id = $1 AND status = 'active'`,
		subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns the most recent subscriptions first. A limit of
// 0 returns every row.
func (db *DB) ListSubscriptions(ctx context.Context, limit int) ([]*Subscription, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at DESC, id DESC LIMIT NULLIF($1, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CreateDownloadEvent appends an audit row
func (db *DB) CreateDownloadEvent(ctx context.Context, e *DownloadEvent) error {
	if db == nil {
		return ErrNotConfigured
	}

	query := `
		INSERT INTO download_events (user_id, url, platform, media_kind, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := db.conn.QueryRowContext(ctx, query,
		e.UserID, e.URL, string(e.Platform), string(e.MediaKind), e.Success, e.ErrorMessage, e.CreatedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create download event: %w", err)
	}
	return nil
}

// CountSuccessfulDownloads counts successful events in [from, to)
func (db *DB) CountSuccessfulDownloads(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	if db == nil {
		return 0, ErrNotConfigured
	}

	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_events WHERE user_id = $1 AND success = TRUE AND created_at >= $2 AND created_at < $3`,
		userID, from.UTC(), to.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return count, nil
}

// GetGlobalStats aggregates users, subscriptions and downloads. Today's
// downloads are those created at or after dayStart.
func (db *DB) GetGlobalStats(ctx context.Context, now, dayStart time.Time) (*GlobalStats, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	stats := &GlobalStats{SubscriptionsByTier: make(map[Tier]int64)}

	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM subscriptions WHERE status = 'active' AND end_at > $1),
			(SELECT COUNT(*) FROM download_events),
			(SELECT COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) FROM download_events),
			(SELECT COUNT(*) FROM download_events WHERE created_at >= $2)`

	err := db.conn.QueryRowContext(ctx, query, now.UTC(), dayStart.UTC()).Scan(
		&stats.TotalUsers,
		&stats.ActiveSubscriptions,
		&stats.TotalDownloads,
		&stats.SuccessfulDownloads,
		&stats.DownloadsToday,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get global stats: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT tier, COUNT(*) FROM subscriptions WHERE status = 'active' AND end_at > $1 GROUP BY tier`,
		now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions by tier: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int64
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tier count: %w", err)
		}
		stats.SubscriptionsByTier[Tier(tier)] = count
	}
	return stats, rows.Err()
}

// DownloadsByDay groups events since the given instant by UTC date, newest first
func (db *DB) DownloadsByDay(ctx context.Context, since time.Time) ([]DayCount, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	query := `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
			COUNT(*),
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0)
		FROM download_events
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day DESC`

	rows, err := db.conn.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get downloads by day: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Total, &dc.Successful); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		// AT TIME ZONE yields a timestamp without zone; pin it to UTC
		dc.Day = time.Date(dc.Day.Year(), dc.Day.Month(), dc.Day.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, dc)
	}
	return out, rows.Err()
}

// DownloadsByPlatform counts every event per platform, largest first
func (db *DB) DownloadsByPlatform(ctx context.Context) ([]LabelCount, error) {
	return db.groupDownloads(ctx, "platform")
}

// DownloadsByKind counts every event per media kind, largest first
func (db *DB) DownloadsByKind(ctx context.Context) ([]LabelCount, error) {
	return db.groupDownloads(ctx, "media_kind")
}

func (db *DB) groupDownloads(ctx context.Context, column string) ([]LabelCount, error) {
	if db == nil {
		return nil, ErrNotConfigured
	}

	// column is one of two constants above, never user input
	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*) AS c FROM download_events GROUP BY %[1]s ORDER BY c DESC, %[1]s`, column)
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to group downloads by %s: %w", column, err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
