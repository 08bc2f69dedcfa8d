package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

// Cache tiers, each with its own TTL and version counter
const (
	TierSearch      = "search"
	TierSuggestions = "suggestions"
	TierPopular     = "popular"
	TierFacets      = "facets"
	TierLocation    = "location"
)

// CacheLayer implements read-through caching with per-key single-flight,
// versioned tiers, property tags and a long-lived stale copy for fallback
type CacheLayer struct {
	cache         providers.CacheProvider
	cfg           config.CacheConfig
	group         singleflight.Group
	flightTimeout time.Duration
	metrics       *observability.Metrics
	// invalidations counts InvalidateProperty calls; flights that overlap one do not write back
	invalidations atomic.Uint64
}

// NewCacheLayer creates a cache layer. A nil cache bypasses caching entirely.
func NewCacheLayer(cache providers.CacheProvider, cfg config.CacheConfig, flightTimeout time.Duration, metrics *observability.Metrics) *CacheLayer {
	if cfg.StaleFactor < 1 {
		cfg.StaleFactor = 1
	}
	return &CacheLayer{
		cache:         cache,
		cfg:           cfg,
		flightTimeout: flightTimeout,
		metrics:       metrics,
	}
}

func (l *CacheLayer) versionKey(tier string) string {
	return fmt.Sprintf("%s:%s:version", l.cfg.KeyPrefix, tier)
}

func (l *CacheLayer) entryKey(tier string, version int64, generation uint64, hash string) string {
	return fmt.Sprintf("%s:%s:v%d:g%d:%s", l.cfg.KeyPrefix, tier, version, generation, hash)
}

func (l *CacheLayer) staleKey(tier, hash string) string {
	return fmt.Sprintf("%s:%s:stale:%s", l.cfg.KeyPrefix, tier, hash)
}

func (l *CacheLayer) tagKey(propertyID string) string {
	return fmt.Sprintf("%s:tag:%s", l.cfg.KeyPrefix, propertyID)
}

// version returns the current version of a tier, zero when never bumped
func (l *CacheLayer) version(ctx context.Context, tier string) (int64, error) {
	raw, err := l.cache.Get(ctx, l.versionKey(tier))
	if errors.Is(err, providers.ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// BumpVersion makes every entry of the tiers unreachable
func (l *CacheLayer) BumpVersion(ctx context.Context, tiers ...string) error {
	if l.cache == nil {
		return nil
	}
	var errs []error
	for _, tier := range tiers {
		if _, err := l.cache.Incr(ctx, l.versionKey(tier)); err != nil {
			errs = append(errs, fmt.Errorf("bump %s: %w", tier, err))
		}
	}
	return errors.Join(errs...)
}

// InvalidateProperty deletes every entry tagged with the property id
func (l *CacheLayer) InvalidateProperty(ctx context.Context, propertyID string) (int, error) {
	if l.cache == nil {
		return 0, nil
	}
	l.invalidations.Add(1)
	tag := l.tagKey(propertyID)
	keys, err := l.cache.TaggedKeys(ctx, tag)
	if err != nil {
		return 0, fmt.Errorf("failed to read tag %s: %w", tag, err)
	}
	if err := l.cache.Delete(ctx, append(keys, tag)...); err != nil {
		return 0, fmt.Errorf("failed to delete tagged entries: %w", err)
	}
	return len(keys), nil
}

type flightResult[T any] struct {
	value     T
	cached    bool
	fallbacks []string
}

// cacheRequest describes one cached computation
type cacheRequest[T any] struct {
	tier string
	hash string
	// generation is the popularity generation the value is ranked with
	generation uint64
	compute func(ctx context.Context) (T, []string, error)
	// tags returns the property ids whose change invalidates the value
	tags  func(T) []string
	empty func() T
}

// fetchCached serves a value from cache or computes it once per key. Degraded
// values are returned but not cached.
func fetchCached[T any](ctx context.Context, l *CacheLayer, r cacheRequest[T]) (T, entities.ResponseMeta, error) {
	var zero T
	meta := entities.ResponseMeta{Cache: entities.CacheStatusBypass}

	if l.cache == nil {
		return computeDirect(ctx, l, r, meta)
	}

	version, err := l.version(ctx, r.tier)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("tier", r.tier).Msg("cache unavailable, bypassing")
		meta.AddFallback(entities.FallbackCacheUnavailable)
		return computeDirect(ctx, l, r, meta)
	}

	key := l.entryKey(r.tier, version, r.generation, r.hash)
	if v, ok := decodeCached[T](ctx, l.cache, key); ok {
		observability.RecordCacheHit(ctx, l.metrics, r.tier)
		meta.Cache = entities.CacheStatusHit
		return v, meta, nil
	}
	observability.RecordCacheMiss(ctx, l.metrics, r.tier)

	ch := l.group.DoChan(key, func() (interface{}, error) {
		// the computation outlives callers that give up so the others still get it
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.flightTimeout)
		defer cancel()

		if v, ok := decodeCached[T](fctx, l.cache, key); ok {
			return flightResult[T]{value: v, cached: true}, nil
		}

		epoch := l.invalidations.Load()
		value, fallbacks, err := r.compute(fctx)
		if err != nil {
			if stale, ok := decodeCached[T](fctx, l.cache, l.staleKey(r.tier, r.hash)); ok {
				observability.LoggerFromContext(ctx).Warn().Err(err).Str("tier", r.tier).Msg("serving stale cache entry")
				return flightResult[T]{value: stale, fallbacks: []string{entities.FallbackStaleCache}}, nil
			}
			return nil, err
		}

		if len(fallbacks) == 0 {
			storeCached(fctx, l, r, key, value, epoch)
		}
		return flightResult[T]{value: value, fallbacks: fallbacks}, nil
	})

	select {
	case <-ctx.Done():
		return zero, meta, ctx.Err()
	case res := <-ch:
		observability.RecordUpstreamCompute(ctx, l.metrics, r.tier, res.Shared)
		if res.Err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(res.Err).Str("tier", r.tier).Msg("upstream unavailable, returning empty result")
			meta.Cache = entities.CacheStatusMiss
			meta.AddFallback(entities.FallbackUpstreamUnavailable)
			return r.empty(), meta, nil
		}

		fr := res.Val.(flightResult[T])
		switch {
		case fr.cached:
			meta.Cache = entities.CacheStatusHit
		case len(fr.fallbacks) == 1 && fr.fallbacks[0] == entities.FallbackStaleCache:
			meta.Cache = entities.CacheStatusStale
		default:
			meta.Cache = entities.CacheStatusMiss
		}
		for _, f := range fr.fallbacks {
			meta.AddFallback(f)
		}
		return fr.value, meta, nil
	}
}

// computeDirect runs the computation without touching the cache
func computeDirect[T any](ctx context.Context, l *CacheLayer, r cacheRequest[T], meta entities.ResponseMeta) (T, entities.ResponseMeta, error) {
	observability.RecordUpstreamCompute(ctx, l.metrics, r.tier, false)
	value, fallbacks, err := r.compute(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			var zero T
			return zero, meta, ctxErr
		}
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("tier", r.tier).Msg("upstream unavailable, returning empty result")
		meta.AddFallback(entities.FallbackUpstreamUnavailable)
		return r.empty(), meta, nil
	}
	for _, f := range fallbacks {
		meta.AddFallback(f)
	}
	return value, meta, nil
}

func decodeCached[T any](ctx context.Context, cache providers.CacheProvider, key string) (T, bool) {
	var v T
	raw, err := cache.Get(ctx, key)
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return v, false
	}
	return v, true
}

// storeCached writes the entry, its stale copy and the property tags. Nothing is
// written when a property was invalidated since epoch, as the value may predate
// the change. Failures only cost a future miss.
func storeCached[T any](ctx context.Context, l *CacheLayer, r cacheRequest[T], key string, value T, epoch uint64) {
	logger := observability.LoggerFromContext(ctx)
	if l.invalidations.Load() != epoch {
		logger.Debug().Str("tier", r.tier).Msg("skipping cache write, invalidated during computation")
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Error().Err(err).Str("tier", r.tier).Msg("failed to encode cache entry")
		return
	}

	ttl := l.cfg.TierTTL(r.tier)
	if err := l.cache.Set(ctx, key, data, ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to write cache entry")
		return
	}
	if err := l.cache.Set(ctx, l.staleKey(r.tier, r.hash), data, ttl*time.Duration(l.cfg.StaleFactor)); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to write stale cache entry")
	}

	if r.tags != nil {
		for _, id := range r.tags(value) {
			if err := l.cache.Tag(ctx, l.tagKey(id), []string{key}, ttl); err != nil {
				logger.Warn().Err(err).Str("property_id", id).Msg("failed to tag cache entry")
			}
		}
	}

	// an invalidation that raced the write may have missed the new tags
	if l.invalidations.Load() != epoch {
		if err := l.cache.Delete(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("failed to drop raced cache entry")
		}
	}
}
