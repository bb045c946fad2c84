// Package cache holds short-lived bot state: a bounded in-process TTL
// cache for callback dedup and pending invoices, and Redis backed gate
// primitives for running several bot instances against one database.
package cache

import (
	"sync"
	"time"

	"github.com/clipbot/clipbot/internal/logger"
)

const (
	DefaultMaxSize         = 10000
	DefaultExpiry          = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
)

type Item struct {
	Value     interface{}
	ExpiresAt time.Time
}

func (i *Item) IsExpired() bool {
	return i.expiredAt(time.Now())
}

func (i *Item) expiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Cache is a size bounded map with per-item expiry. When full, the item
// closest to expiry is evicted first.
type Cache struct {
	mu              sync.RWMutex
	items           map[string]*Item
	maxSize         int
	defaultExpiry   time.Duration
	cleanupInterval time.Duration
	stop            chan struct{}
	closeOnce       sync.Once
	evictions       int64
}

func New() *Cache {
	return NewWithConfig(DefaultMaxSize, DefaultExpiry, DefaultCleanupInterval)
}

func NewWithConfig(maxSize int, defaultExpiry, cleanupInterval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	c := &Cache{
		items:           make(map[string]*Item),
		maxSize:         maxSize,
		defaultExpiry:   defaultExpiry,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiry(key, value, c.defaultExpiry)
}

func (c *Cache) SetWithExpiry(key string, value interface{}, expiry time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, expiry)
}

// SetIfAbsent stores value only when key is missing or expired and reports
// whether it did. Callers use it to claim a key exactly once.
func (c *Cache) SetIfAbsent(key string, value interface{}, expiry time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, ok := c.items[key]; ok && !item.IsExpired() {
		return false
	}
	c.put(key, value, expiry)
	return true
}

func (c *Cache) put(key string, value interface{}, expiry time.Duration) {
	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictOne()
	}
	c.items[key] = &Item{
		Value:     value,
		ExpiresAt: time.Now().Add(expiry),
	}
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if item.IsExpired() {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return item.Value, true
}

// Take returns the value and removes it in one step
func (c *Cache) Take(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}
	delete(c.items, key)
	if item.IsExpired() {
		return nil, false
	}
	return item.Value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.mu.Unlock()
}

// Size counts stored items, expired ones included until the next sweep
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys lists live keys in no particular order
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	keys := make([]string, 0, len(c.items))
	for key, item := range c.items {
		if !item.expiredAt(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

type Stats struct {
	Size          int
	MaxSize       int
	DefaultExpiry time.Duration
	ExpiredItems  int
	Evictions     int64
}

func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	expired := 0
	for _, item := range c.items {
		if item.expiredAt(now) {
			expired++
		}
	}
	return Stats{
		Size:          len(c.items),
		MaxSize:       c.maxSize,
		DefaultExpiry: c.defaultExpiry,
		ExpiredItems:  expired,
		Evictions:     c.evictions,
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Cache cleanup panicked", map[string]interface{}{"panic": r})
		}
	}()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, item := range c.items {
		if item.expiredAt(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// evictOne drops an expired item if there is one, otherwise the item
// that would expire soonest. Caller holds the write lock.
func (c *Cache) evictOne() {
	var victim string
	var soonest time.Time
	now := time.Now()

	for key, item := range c.items {
		if item.expiredAt(now) {
			victim = key
			break
		}
		if victim == "" || item.ExpiresAt.Before(soonest) {
			victim = key
			soonest = item.ExpiresAt
		}
	}
	if victim != "" {
		delete(c.items, victim)
		c.evictions++
	}
}
