package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

type memoryEntry struct {
	value     []byte
	members   map[string]struct{}
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryAdapter implements CacheProvider with a bounded in-process LRU. It is
// used when no Redis is configured and in tests.
type MemoryAdapter struct {
	entries *lru.Cache[string, *memoryEntry]
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemoryAdapter creates an LRU cache holding at most size entries
func NewMemoryAdapter(size int) (*MemoryAdapter, error) {
	if size <= 0 {
		size = 10000
	}
	entries, err := lru.New[string, *memoryEntry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryAdapter{entries: entries, now: time.Now}, nil
}

var _ providers.CacheProvider = (*MemoryAdapter)(nil)

func (a *MemoryAdapter) live(key string) (*memoryEntry, bool) {
	entry, ok := a.entries.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(a.now()) {
		a.entries.Remove(key)
		return nil, false
	}
	return entry, true
}

func (a *MemoryAdapter) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return a.now().Add(ttl)
}

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.live(key)
	if !ok || entry.value == nil {
		return nil, providers.ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a copy of value with expiration
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries.Add(key, &memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: a.expiry(ttl),
	})
	return nil
}

// Delete removes values from cache
func (a *MemoryAdapter) Delete(ctx context.Context, keys ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, k := range keys {
		a.entries.Remove(k)
	}
	return nil
}

// Exists checks if a key exists in cache
func (a *MemoryAdapter) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.live(key)
	return ok, nil
}

// Incr atomically increments a counter stored as a decimal string
func (a *MemoryAdapter) Incr(ctx context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n int64
	entry, ok := a.live(key)
	if ok && entry.value != nil {
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++

	next := &memoryEntry{value: []byte(strconv.FormatInt(n, 10))}
	if ok {
		next.expiresAt = entry.expiresAt
	}
	a.entries.Add(key, next)
	return n, nil
}

// Tag adds keys to the tag set and extends its expiry
func (a *MemoryAdapter) Tag(ctx context.Context, tag string, keys []string, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.live(tag)
	if !ok || entry.members == nil {
		entry = &memoryEntry{members: make(map[string]struct{}, len(keys))}
	}
	for _, k := range keys {
		entry.members[k] = struct{}{}
	}
	entry.expiresAt = a.expiry(ttl)
	a.entries.Add(tag, entry)
	return nil
}

// TaggedKeys returns the keys recorded under a tag
func (a *MemoryAdapter) TaggedKeys(ctx context.Context, tag string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.live(tag)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(entry.members))
	for k := range entry.members {
		keys = append(keys, k)
	}
	return keys, nil
}

// Ping always succeeds
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted
func (a *MemoryAdapter) Len() int {
	return a.entries.Len()
}
