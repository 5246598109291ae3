package cache

import (
	"sync"
	"time"
)

type ttlEntry struct {
	b   []byte
	exp time.Time
}

// TTLCache is the single-process response cache used when the engine
// runs without Redis. Expired entries are dropped lazily on read.
type TTLCache struct {
	mu sync.RWMutex
	m  map[string]ttlEntry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{m: make(map[string]ttlEntry)}
}

var _ BytesCache = (*TTLCache)(nil)

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = ttlEntry{b: value, exp: exp}
	c.mu.Unlock()
	return nil
}
