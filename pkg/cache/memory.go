package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data     []byte
	expireAt time.Time // zero means no expiry
	lastUsed time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryCache is the in-process backend. Values are kept JSON-encoded
// so Get fills typed destinations exactly like the Redis backend.
// Eviction is LRU once MaxEntries is reached; a background sweep drops
// expired entries.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	max     int
	sweep   *time.Ticker
	done    chan struct{}
}

// NewMemoryCache creates an in-process cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		max:     cfg.MaxEntries,
		sweep:   time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.sweepLoop()
	return mc
}

var _ Service = (*MemoryCache)(nil)

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	now := time.Now()
	entry := &memoryEntry{data: data, lastUsed: now}
	if ttl > 0 {
		entry.expireAt = now.Add(ttl)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, exists := mc.entries[key]; !exists && len(mc.entries) >= mc.max {
		mc.evictOldest()
	}
	mc.entries[key] = entry
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	now := time.Now()

	mc.mu.Lock()
	entry, ok := mc.entries[key]
	if !ok || entry.expired(now) {
		if ok {
			delete(mc.entries, key)
		}
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	entry.lastUsed = now
	data := entry.data
	mc.mu.Unlock()

	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.entries, key)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if entry, ok := mc.entries[key]; ok && !entry.expired(now) {
		return false, nil
	}
	mc.entries[key] = &memoryEntry{
		data:     []byte(`"locked"`),
		expireAt: now.Add(ttl),
		lastUsed: now,
	}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the background sweep.
func (mc *MemoryCache) Close() error {
	mc.sweep.Stop()
	close(mc.done)
	return nil
}

func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range mc.entries {
		if oldestKey == "" || entry.lastUsed.Before(oldest) {
			oldestKey = key
			oldest = entry.lastUsed
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweepLoop() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.sweep.C:
			now := time.Now()
			mc.mu.Lock()
			for key, entry := range mc.entries {
				if entry.expired(now) {
					delete(mc.entries, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}
