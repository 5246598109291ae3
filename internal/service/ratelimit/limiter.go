// Package ratelimit throttles the manual cycle trigger. A runaway
// client hammering POST /api/cycles would otherwise keep the engine
// permanently busy.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter keeps one token bucket per caller key. Buckets untouched
// for staleAfter are dropped during Allow so the map cannot grow
// without bound under rotating client IPs.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

const staleAfter = 10 * time.Minute

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket), lastSweep: time.Now()}
}

// Allow consumes one token for key if available. capacity bounds the
// burst; refillPerSec restores tokens continuously.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > staleAfter {
		for k, b := range l.buckets {
			if now.Sub(b.last) > staleAfter {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, last: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * refillPerSec
		if b.tokens > capacity {
			b.tokens = capacity
		}
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
