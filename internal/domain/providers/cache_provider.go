package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache, returning ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration. The write is atomic per key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes values from cache
	Delete(ctx context.Context, keys ...string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// Incr atomically increments a counter and returns the new value
	Incr(ctx context.Context, key string) (int64, error)

	// Tag records cache keys under a tag so they can be invalidated together
	Tag(ctx context.Context, tag string, keys []string, ttl time.Duration) error

	// TaggedKeys returns the keys recorded under a tag
	TaggedKeys(ctx context.Context, tag string) ([]string, error)

	// Ping verifies the backend is reachable
	Ping(ctx context.Context) error
}
