package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/consts"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix        = "clipbot:lock:"
	reservationPrefix = "clipbot:pending:"

	DefaultLockTTL   = 30 * time.Second
	lockRetryBackoff = 25 * time.Millisecond
)

// NewRedisClient connects and pings. Callers close the client.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// deletes the lock only while it still carries our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a gate.Locker shared by every instance using the same
// Redis. A lock outlives a crashed holder by at most its TTL.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}

	return func() {
		// unlock runs after the request may have been cancelled
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		if err := unlockScript.Run(unlockCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			logger.Warn("Failed to release gate lock", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}, nil
}

var releaseScript = redis.NewScript(`
local n = redis.call("DECR", KEYS[1])
if n <= 0 then
	redis.call("DEL", KEYS[1])
	return 0
end
return n
`)

// RedisReservations is a gate.Reservations kept in Redis. Each counter
// expires consts.ReservationTTL after the last acquire so slots held by a
// crashed instance come back.
type RedisReservations struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReservations(rdb *redis.Client) *RedisReservations {
	return &RedisReservations{rdb: rdb, ttl: consts.ReservationTTL}
}

func (r *RedisReservations) Pending(ctx context.Context, key string) (int, error) {
	n, err := r.rdb.Get(ctx, reservationPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reservations %s: %w", key, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (r *RedisReservations) Acquire(ctx context.Context, key string) error {
	redisKey := reservationPrefix + key
	pipe := r.rdb.TxPipeline()
	pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("acquire reservation %s: %w", key, err)
	}
	return nil
}

func (r *RedisReservations) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{reservationPrefix + key}).Err(); err != nil {
		return fmt.Errorf("release reservation %s: %w", key, err)
	}
	return nil
}
