package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

func searchCached(t *testing.T, e *testEngine, raw services.RawSearchParams) entities.CacheStatus {
	t.Helper()
	result, err := e.search.Search(context.Background(), e.normalize(t, raw, entities.RequestClassSearch))
	require.NoError(t, err)
	return result.Meta.Cache
}

func TestCacheInvalidation_NonRankingEventRemovesTaggedEntries(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	inv := services.NewCacheInvalidationService(e.layer)
	hotels := services.RawSearchParams{Query: "hotel"}
	resorts := services.RawSearchParams{Query: "resort"}

	searchCached(t, e, hotels)
	searchCached(t, e, resorts)

	err := inv.HandleEvent(context.Background(), entities.NewPropertyEvent("h1", entities.PropertyEventTypeChanged, "photos"))
	require.NoError(t, err)

	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, hotels))
	assert.Equal(t, entities.CacheStatusHit, searchCached(t, e, resorts))
}

func TestCacheInvalidation_RankingEventRetiresRankedTiers(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	inv := services.NewCacheInvalidationService(e.layer)
	destinations := services.NewPopularDestinationsService(e.docs, e.popularity, e.layer)
	ctx := context.Background()
	resorts := services.RawSearchParams{Query: "resort"}

	searchCached(t, e, resorts)
	_, err := destinations.PopularDestinations(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, inv.HandleEvent(ctx, entities.NewPropertyEvent("h1", entities.PropertyEventTypeChanged, "room_types")))

	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, resorts))

	list, err := destinations.PopularDestinations(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, list.Meta.Cache)
}

func TestCacheInvalidation_DeleteIsRankingRelevant(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	inv := services.NewCacheInvalidationService(e.layer)
	resorts := services.RawSearchParams{Query: "resort"}

	searchCached(t, e, resorts)
	require.NoError(t, inv.HandleEvent(context.Background(), entities.NewPropertyEvent("h4", entities.PropertyEventTypeDeleted)))

	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, resorts))
}

func TestCacheInvalidation_InvalidateSearchCaches(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	inv := services.NewCacheInvalidationService(e.layer)
	destinations := services.NewPopularDestinationsService(e.docs, e.popularity, e.layer)
	ctx := context.Background()
	hotels := services.RawSearchParams{Query: "hotel"}

	searchCached(t, e, hotels)
	_, err := destinations.PopularDestinations(ctx, 5)
	require.NoError(t, err)

	require.NoError(t, inv.InvalidateSearchCaches(ctx))

	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, hotels))
	list, err := destinations.PopularDestinations(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, list.Meta.Cache)
}

func TestCacheInvalidation_CacheUnavailable(t *testing.T) {
	layer := services.NewCacheLayer(failingCache{}, testCacheConfig(), testSearchConfig().RequestTimeout, nil)
	inv := services.NewCacheInvalidationService(layer)

	err := inv.HandleEvent(context.Background(), entities.NewPropertyEvent("h1", entities.PropertyEventTypeChanged))
	assert.Error(t, err)
	assert.Error(t, inv.InvalidateSearchCaches(context.Background()))
}
