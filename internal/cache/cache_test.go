package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("invoice:42", "cs_test_a1")

	v, ok := c.Get("invoice:42")
	require.True(t, ok)
	assert.Equal(t, "cs_test_a1", v)

	_, ok = c.Get("invoice:43")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewWithConfig(100, time.Hour, time.Hour)
	defer c.Close()

	c.SetWithExpiry("cb:1", true, 30*time.Millisecond)
	_, ok := c.Get("cb:1")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("cb:1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired read removes the item")
}

func TestCache_SetIfAbsent(t *testing.T) {
	c := New()
	defer c.Close()

	assert.True(t, c.SetIfAbsent("cb:abc", 1, time.Minute))
	assert.False(t, c.SetIfAbsent("cb:abc", 2, time.Minute))

	v, _ := c.Get("cb:abc")
	assert.Equal(t, 1, v)

	// an expired claim can be taken again
	c.SetWithExpiry("cb:old", 1, -time.Second)
	assert.True(t, c.SetIfAbsent("cb:old", 2, time.Minute))
}

func TestCache_SetIfAbsentConcurrent(t *testing.T) {
	c := New()
	defer c.Close()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.SetIfAbsent("cb:dup", true, time.Minute) {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestCache_Take(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("k", "v")
	v, ok := c.Take("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = c.Take("k")
	assert.False(t, ok)

	c.SetWithExpiry("gone", "v", -time.Second)
	_, ok = c.Take("gone")
	assert.False(t, ok)
}

func TestCache_EvictsSoonestToExpire(t *testing.T) {
	c := NewWithConfig(3, time.Hour, time.Hour)
	defer c.Close()

	c.SetWithExpiry("short", 1, time.Minute)
	c.SetWithExpiry("long1", 2, time.Hour)
	c.SetWithExpiry("long2", 3, time.Hour)
	c.SetWithExpiry("new", 4, time.Hour)

	assert.Equal(t, 3, c.Size())
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestCache_OverwriteDoesNotEvict(t *testing.T) {
	c := NewWithConfig(2, time.Hour, time.Hour)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(0), c.GetStats().Evictions)
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_KeysAndStats(t *testing.T) {
	c := NewWithConfig(100, time.Hour, time.Hour)
	defer c.Close()

	c.Set("live1", 1)
	c.Set("live2", 2)
	c.SetWithExpiry("dead", 3, -time.Hour)

	assert.ElementsMatch(t, []string{"live1", "live2"}, c.Keys())

	stats := c.GetStats()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, 100, stats.MaxSize)
	assert.Equal(t, 1, stats.ExpiredItems)
	assert.Equal(t, time.Hour, stats.DefaultExpiry)
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := NewWithConfig(100, time.Hour, 20*time.Millisecond)
	defer c.Close()

	c.SetWithExpiry("t1", 1, 10*time.Millisecond)
	c.SetWithExpiry("t2", 2, 10*time.Millisecond)
	c.Set("keep", 3)

	assert.Eventually(t, func() bool { return c.Size() == 1 }, time.Second, 10*time.Millisecond)
	_, ok := c.Get("keep")
	assert.True(t, ok)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New()
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
}

func TestCache_Concurrent(t *testing.T) {
	c := NewWithConfig(500, time.Minute, time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(fmt.Sprintf("k-%d-%d", id, j), j)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Get(fmt.Sprintf("k-%d-%d", id, j))
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 500)
}

func TestItem_IsExpired(t *testing.T) {
	item := &Item{ExpiresAt: time.Now().Add(-time.Second)}
	assert.True(t, item.IsExpired())

	item.ExpiresAt = time.Now().Add(time.Hour)
	assert.False(t, item.IsExpired())
}
