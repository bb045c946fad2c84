package gate

import (
	"context"
	"sync"
)

// Locker serialises admission for one key. The returned func releases the
// lock and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Reservations counts admitted downloads that have not been recorded yet
type Reservations interface {
	Pending(ctx context.Context, key string) (int, error)
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// KeyedMutex is an in-process Locker. Entries are dropped once no caller
// holds or waits on them, so the map stays as small as the set of users
// currently being admitted.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.drop(key, e)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Len reports how many keys are held or awaited
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// MemoryReservations is an in-process Reservations
type MemoryReservations struct {
	mu      sync.Mutex
	pending map[string]int
}

func NewMemoryReservations() *MemoryReservations {
	return &MemoryReservations{pending: make(map[string]int)}
}

func (m *MemoryReservations) Pending(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[key], nil
}

func (m *MemoryReservations) Acquire(_ context.Context, key string) error {
	m.mu.Lock()
	m.pending[key]++
	m.mu.Unlock()
	return nil
}

func (m *MemoryReservations) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[key] <= 1 {
		delete(m.pending, key)
		return nil
	}
	m.pending[key]--
	return nil
}
