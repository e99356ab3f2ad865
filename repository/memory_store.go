package repository

import (
	"context"
	"sync"
	"time"

	domainCache "github.com/blaze-sports-intel/scorecache/domains/cache"
)

// MemoryStore implements cache.Store with an in-process map. It is the
// fallback when Valkey is unreachable and the store used in tests.
// Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	done    chan struct{}
	once    sync.Once
}

type memoryEntry struct {
	value    string
	expireAt time.Time
}

var _ domainCache.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
// A background goroutine periodically drops expired keys, mirroring the
// server-side TTL expiration of Valkey.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}
	go ms.cleanupLoop()
	return ms
}

func (ms *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	e, ok := ms.entries[key]
	if !ok {
		return "", false, nil
	}

	// Expired keys read as absent; the cleanup loop removes them.
	if time.Now().After(e.expireAt) {
		return "", false, nil
	}

	return e.value, true, nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries[key] = &memoryEntry{
		value:    value,
		expireAt: time.Now().Add(ttl),
	}
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[key]
	delete(ms.entries, key)

	// A key past its TTL reads as absent, so its deletion must too.
	if !ok || time.Now().After(e.expireAt) {
		return false, nil
	}
	return true, nil
}

func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close stops the cleanup goroutine.
func (ms *MemoryStore) Close() {
	ms.once.Do(func() { close(ms.done) })
}

// Len returns the number of live (non-expired) keys.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	now := time.Now()
	n := 0
	for _, e := range ms.entries {
		if now.Before(e.expireAt) {
			n++
		}
	}
	return n
}

func (ms *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			now := time.Now()
			ms.mu.Lock()
			for k, e := range ms.entries {
				if now.After(e.expireAt) {
					delete(ms.entries, k)
				}
			}
			ms.mu.Unlock()
		}
	}
}
