// Package cache holds the response cache used by the read API. The
// rankings endpoint serves the same payload to every caller between
// cycles, so handlers cache the marshaled envelope and skip the store
// round trip on repeat reads.
package cache

import "time"

// BytesCache stores pre-marshaled response bodies with a TTL.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
