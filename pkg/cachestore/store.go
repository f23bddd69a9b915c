// Package cachestore provides the key-value substrates the cache
// decorator stores entries in: an in-process map for single-instance
// deployments, SQLite for a persistent local cache, and Redis for a
// cache shared between server processes.
package cachestore

import (
	"context"
	"time"
)

// Store is a key-value store with per-entry expiry.
//
// Implementations must be safe for concurrent use. An expired entry
// must never be returned from Get; whether it is deleted lazily or
// eagerly is up to the implementation.
type Store interface {
	// Get returns the value for key and whether a live entry exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key with the given expiry time.
	Put(ctx context.Context, key string, expires time.Time, value []byte) error

	// Purge removes the entry for key, if any.
	Purge(ctx context.Context, key string) error

	// PurgePrefix removes every entry whose key starts with prefix.
	PurgePrefix(ctx context.Context, prefix string) error
}
