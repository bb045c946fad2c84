package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/clipbot/clipbot/internal/cache"
	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/ledger"
	"github.com/clipbot/clipbot/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitDiscard()
}

func TestOpenStoreFallsBackToMemory(t *testing.T) {
	store, closer, err := openStore(&config.Config{})
	require.NoError(t, err)
	defer closer.Close()

	_, ok := store.(*database.MemoryStore)
	assert.True(t, ok)
}

func TestOpenStoreReportsDatabaseErrors(t *testing.T) {
	_, _, err := openStore(&config.Config{PostgreDSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"})
	assert.Error(t, err)
}

func TestGateConfigWithoutRedis(t *testing.T) {
	gc, closer, err := gateConfig(context.Background(), &config.Config{}, nil)
	require.NoError(t, err)
	defer closer.Close()

	assert.Nil(t, gc.Locker, "the gate picks its in-process defaults")
	assert.Nil(t, gc.Reservations)
}

func TestGateConfigWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	gc, closer, err := gateConfig(context.Background(), &config.Config{RedisAddr: mr.Addr()}, nil)
	require.NoError(t, err)
	defer closer.Close()

	assert.IsType(t, &cache.RedisLocker{}, gc.Locker)
	assert.IsType(t, &cache.RedisReservations{}, gc.Reservations)
}

func TestGateConfigRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := gateConfig(context.Background(), &config.Config{RedisAddr: addr}, nil)
	assert.Error(t, err)
}

func TestExpireLoopSweepsAndStops(t *testing.T) {
	store := database.NewMemoryStore()
	clock := ledger.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := ledger.New(store, database.DefaultTierTable(), ledger.Config{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())

	_, err := l.UpsertUser(ctx, database.UserProfile{ID: 5, FirstName: "A"})
	require.NoError(t, err)
	_, err = l.ActivateSubscription(ctx, 5, database.TierBasic, 1, "ref-1")
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	done := make(chan struct{})
	go func() {
		expireLoop(ctx, l, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sub, err := store.LatestActiveSubscription(context.Background(), 5)
		return err == nil && sub == nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expireLoop did not stop")
	}
}
