package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract shared by the Redis, memory and
// layered backends. Values round-trip through JSON so a typed
// destination behaves the same against every backend. TryLock and
// Unlock implement a TTL lease; on the layered backend the lease lives
// in Redis so it holds across replicas.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Key joins parts into one colon-separated cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
