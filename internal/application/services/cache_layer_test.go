package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

func TestCacheLayer_SingleFlightExecutesOnce(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	e.executor.delay = 50 * time.Millisecond

	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*entities.SearchResult
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req, err := e.normalizer.Normalize(services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)
			if !assert.NoError(t, err) {
				return
			}
			result, err := e.search.Search(context.Background(), req)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), e.executor.calls.Load())
	require.Len(t, results, callers)

	want, err := json.Marshal(results[0].WithMeta(entities.ResponseMeta{}))
	require.NoError(t, err)
	for _, r := range results[1:] {
		got, err := json.Marshal(r.WithMeta(entities.ResponseMeta{}))
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
	}
}

func TestCacheLayer_DistinctKeysComputeSeparately(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())

	for _, q := range []string{"hotel", "resort", "hotel"} {
		_, err := e.search.Search(context.Background(), e.normalize(t, services.RawSearchParams{Query: q}, entities.RequestClassSearch))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), e.executor.calls.Load())
}

func TestCacheLayer_InvalidatePropertyRemovesTaggedEntries(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	hotels := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)
	resorts := e.normalize(t, services.RawSearchParams{Query: "resort"}, entities.RequestClassSearch)

	_, err := e.search.Search(context.Background(), hotels)
	require.NoError(t, err)
	_, err = e.search.Search(context.Background(), resorts)
	require.NoError(t, err)

	removed, err := e.layer.InvalidateProperty(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	again, err := e.search.Search(context.Background(), hotels)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, again.Meta.Cache)

	cached, err := e.search.Search(context.Background(), resorts)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, cached.Meta.Cache)
	assert.Equal(t, int64(3), e.executor.calls.Load())
}

func TestCacheLayer_InvalidationDuringComputeSkipsWrite(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	e.executor.started = make(chan struct{}, 1)
	e.executor.release = make(chan struct{})
	req := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)

	done := make(chan *entities.SearchResult, 1)
	go func() {
		result, err := e.search.Search(context.Background(), req)
		assert.NoError(t, err)
		done <- result
	}()

	<-e.executor.started
	_, err := e.layer.InvalidateProperty(context.Background(), "h1")
	require.NoError(t, err)
	close(e.executor.release)

	first := <-done
	assert.Equal(t, entities.CacheStatusMiss, first.Meta.Cache)
	assert.NotEmpty(t, first.Hits)

	e.executor.started = nil
	again, err := e.search.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, again.Meta.Cache)
	assert.Equal(t, int64(2), e.executor.calls.Load())

	cached, err := e.search.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, cached.Meta.Cache)
}

func TestCacheLayer_CommittedPopularityRetiresRankings(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	ctx := context.Background()
	hanoi := e.normalize(t, services.RawSearchParams{Cities: "Hanoi"}, entities.RequestClassSearch)

	first, err := e.search.Search(ctx, hanoi)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, first.Meta.Cache)

	cached, err := e.search.Search(ctx, hanoi)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, cached.Meta.Cache)

	snapshot := entities.EmptyPopularitySnapshot()
	snapshot.Generation = 1
	snapshot.Properties["h3"] = &entities.PopularityRecord{Kind: entities.PopularityKindProperty, Key: "h3", TrendingScore: 1.0}
	require.NoError(t, e.popularity.Commit(ctx, snapshot))

	fresh, err := e.search.Search(ctx, hanoi)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, fresh.Meta.Cache)
	var found bool
	for _, hit := range fresh.Hits {
		if hit.Property.ID == "h3" {
			found = true
			assert.InDelta(t, 1.0, hit.Score.Popularity, 1e-9)
		}
	}
	assert.True(t, found, "h3 missing from results")
}

func TestCacheLayer_BumpVersionRetiresTier(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	search := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)
	nearby := e.normalize(t, services.RawSearchParams{Lat: "21.0285", Lon: "105.8542"}, entities.RequestClassLocation)

	for _, req := range []*entities.SearchRequest{search, nearby} {
		_, err := e.search.Search(context.Background(), req)
		require.NoError(t, err)
	}

	require.NoError(t, e.layer.BumpVersion(context.Background(), services.TierSearch))

	result, err := e.search.Search(context.Background(), search)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, result.Meta.Cache)

	result, err = e.search.Search(context.Background(), nearby)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, result.Meta.Cache)
}

func TestCacheLayer_BypassesUnreachableCache(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	layer := services.NewCacheLayer(failingCache{}, testCacheConfig(), time.Second, nil)
	search := services.NewCachedSearchService(e.executor, layer, e.popularity, nil)

	result, err := search.Search(context.Background(), e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch))
	require.NoError(t, err)

	assert.Equal(t, entities.CacheStatusBypass, result.Meta.Cache)
	assert.True(t, result.Meta.Degraded)
	assert.Equal(t, []string{entities.FallbackCacheUnavailable}, result.Meta.Fallbacks)
	assert.Len(t, result.Hits, 6)

	_, err = layer.InvalidateProperty(context.Background(), "h1")
	assert.Error(t, err)
}

func TestCacheLayer_NilCacheComputesDirectly(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	search := services.NewCachedSearchService(e.executor, services.NewCacheLayer(nil, testCacheConfig(), time.Second, nil), e.popularity, nil)
	req := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)

	for i := 0; i < 2; i++ {
		result, err := search.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, entities.CacheStatusBypass, result.Meta.Cache)
		assert.False(t, result.Meta.Degraded)
	}
	assert.Equal(t, int64(2), e.executor.calls.Load())
}

func TestCacheLayer_ServesStaleCopyWhenPipelineFails(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	req := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)

	fresh, err := e.search.Search(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, e.layer.BumpVersion(context.Background(), services.TierSearch))
	e.executor.failing.Store(true)

	stale, err := e.search.Search(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, entities.CacheStatusStale, stale.Meta.Cache)
	assert.True(t, stale.Meta.Degraded)
	assert.Equal(t, []string{entities.FallbackStaleCache}, stale.Meta.Fallbacks)
	assert.Equal(t, fresh.IDs(), stale.IDs())
}

func TestCacheLayer_EmptyResultWhenNothingToServe(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	e.executor.failing.Store(true)
	req := e.normalize(t, services.RawSearchParams{Query: "hotel", Page: "2", Size: "5"}, entities.RequestClassSearch)

	result, err := e.search.Search(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, result.Hits)
	assert.Empty(t, result.Hits)
	assert.Equal(t, 2, result.Pagination.Page)
	assert.Equal(t, 5, result.Pagination.PageSize)
	assert.Equal(t, []string{entities.FallbackUpstreamUnavailable}, result.Meta.Fallbacks)

	// failures are not cached
	e.executor.failing.Store(false)
	result, err = e.search.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Meta.Degraded)
}

func TestCacheLayer_CallerTimeoutDoesNotCancelSharedWork(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	e.executor.delay = 100 * time.Millisecond
	req := e.normalize(t, services.RawSearchParams{Query: "hotel"}, entities.RequestClassSearch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := e.search.Search(ctx, req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		result, err := e.search.Search(context.Background(), req)
		return err == nil && result.Meta.Cache == entities.CacheStatusHit
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(1), e.executor.calls.Load())
}
