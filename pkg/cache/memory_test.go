package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func newTestCache(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemoryCache_RoundTripsTypedValues(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "quote:AAPL", payload{Symbol: "AAPL", Price: 187.5}, 0))

	var got payload
	require.NoError(t, mc.Get(ctx, "quote:AAPL", &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 187.5, got.Price)
}

func TestMemoryCache_MissReturnsSentinel(t *testing.T) {
	mc := newTestCache(t)

	var got payload
	err := mc.Get(context.Background(), "quote:TSLA", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_ExpiredEntryMissesOnRead(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	var got string
	assert.ErrorIs(t, mc.Get(ctx, "k", &got), ErrCacheMiss,
		"reads drop expired entries without waiting for the sweep")
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := newTestCache(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	time.Sleep(time.Millisecond)

	// Touch a so b becomes the eviction candidate.
	var n int
	require.NoError(t, mc.Get(ctx, "a", &n))
	time.Sleep(time.Millisecond)

	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.NoError(t, mc.Get(ctx, "a", &n))
	assert.ErrorIs(t, mc.Get(ctx, "b", &n), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "c", &n))
}

func TestMemoryCache_DeleteRemovesKeys(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	require.NoError(t, mc.Delete(ctx, "a", "b"))

	var n int
	assert.ErrorIs(t, mc.Get(ctx, "a", &n), ErrCacheMiss)
	assert.ErrorIs(t, mc.Get(ctx, "b", &n), ErrCacheMiss)
}

func TestMemoryCache_TryLockIsExclusive(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	held, err := mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, held)

	held, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.False(t, held, "a held lease rejects other claimants")

	require.NoError(t, mc.Unlock(ctx, "lock:cycle"))

	held, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, held, "release frees the lease")
}

func TestMemoryCache_TryLockLeaseExpires(t *testing.T) {
	mc := newTestCache(t)
	ctx := context.Background()

	held, err := mc.TryLock(ctx, "lock:cycle", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, held)

	time.Sleep(25 * time.Millisecond)

	held, err = mc.TryLock(ctx, "lock:cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, held, "an expired lease is claimable")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lock:cycle", Key("lock", "cycle"))
	assert.Equal(t, "finrank:news:AAPL", Key("finrank", "news", "AAPL"))
}
