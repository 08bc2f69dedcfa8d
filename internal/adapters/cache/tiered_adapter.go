package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

// TieredAdapter fronts a shared cache with a process-local ristretto tier.
// Local entries live at most l1TTL, which bounds how long an instance can serve
// a value another instance already invalidated.
type TieredAdapter struct {
	l1    *ristretto.Cache
	l2    providers.CacheProvider
	l1TTL time.Duration
}

// NewTieredAdapter creates a two-level cache. maxCost is the L1 budget in bytes.
func NewTieredAdapter(l2 providers.CacheProvider, maxCost int64, l1TTL time.Duration) (*TieredAdapter, error) {
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	l1, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost / 100,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &TieredAdapter{l1: l1, l2: l2, l1TTL: l1TTL}, nil
}

var _ providers.CacheProvider = (*TieredAdapter)(nil)

func (a *TieredAdapter) localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > a.l1TTL {
		return a.l1TTL
	}
	return ttl
}

// Get reads L1 first, then L2, populating L1 on an L2 hit
func (a *TieredAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := a.l1.Get(key); ok {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}

	b, err := a.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	a.l1.SetWithTTL(key, b, int64(len(b)), a.l1TTL)
	return b, nil
}

// Set writes through to L2 and then L1
func (a *TieredAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := a.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	a.l1.SetWithTTL(key, value, int64(len(value)), a.localTTL(ttl))
	return nil
}

// Delete removes keys from both tiers
func (a *TieredAdapter) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		a.l1.Del(k)
	}
	return a.l2.Delete(ctx, keys...)
}

// Exists checks L1 then L2
func (a *TieredAdapter) Exists(ctx context.Context, key string) (bool, error) {
	if _, ok := a.l1.Get(key); ok {
		return true, nil
	}
	return a.l2.Exists(ctx, key)
}

// Incr increments in L2 and drops the local copy of the counter
func (a *TieredAdapter) Incr(ctx context.Context, key string) (int64, error) {
	a.l1.Del(key)
	return a.l2.Incr(ctx, key)
}

// Tag records tags in L2 only
func (a *TieredAdapter) Tag(ctx context.Context, tag string, keys []string, ttl time.Duration) error {
	return a.l2.Tag(ctx, tag, keys, ttl)
}

// TaggedKeys reads tags from L2
func (a *TieredAdapter) TaggedKeys(ctx context.Context, tag string) ([]string, error) {
	return a.l2.TaggedKeys(ctx, tag)
}

// Ping checks the shared tier
func (a *TieredAdapter) Ping(ctx context.Context) error {
	if a.l2 == nil {
		return errors.New("tiered cache has no shared tier")
	}
	return a.l2.Ping(ctx)
}

// Wait blocks until buffered L1 writes are applied
func (a *TieredAdapter) Wait() {
	a.l1.Wait()
}

// Close releases the local tier
func (a *TieredAdapter) Close() {
	a.l1.Close()
}
