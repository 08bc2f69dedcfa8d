package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/adapters/events"
	"github.com/zatekoja/propertysearch/backend/internal/adapters/memory"
	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

// MockDocumentRepository is a mock implementation of SearchDocumentRepository
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]*entities.SearchDocument, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SearchDocument), args.Error(1)
}

func (m *MockDocumentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.SearchDocument, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.SearchDocument), args.Error(1)
}

func (f *fakeTextIndex) has(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.docs[id]
	return ok
}

func (f *fakeGeoIndex) has(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.points[id]
	return ok
}

// newIndexedEngine starts from empty indexes and builds them from the repository
func newIndexedEngine(t *testing.T, bus providers.EventBus) (*testEngine, *memory.DocumentRepository, *services.IndexingService) {
	t.Helper()
	e := newTestEngine(t, nil)
	repo := memory.NewDocumentRepository(fixtureDocuments())
	indexer := services.NewIndexingService(repo, e.docs, e.text, e.geo, bus, services.NewCacheInvalidationService(e.layer))
	return e, repo, indexer
}

func TestIndexing_RebuildIndexesEverything(t *testing.T) {
	e, _, indexer := newIndexedEngine(t, nil)

	snapshot, err := indexer.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, snapshot.Len())
	assert.Same(t, snapshot, e.docs.Current())
	for _, doc := range fixtureDocuments() {
		assert.True(t, e.text.has(doc.ID), doc.ID)
	}
	assert.True(t, e.geo.has("h1"))
	assert.False(t, e.geo.has("x1"))

	result, err := e.search.Search(context.Background(), e.normalize(t, services.RawSearchParams{Query: "resort"}, entities.RequestClassSearch))
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, result.IDs())
}

func TestIndexing_RebuildRemovesVanishedDocuments(t *testing.T) {
	e, repo, indexer := newIndexedEngine(t, nil)
	ctx := context.Background()

	first, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	repo.Remove("x1")
	repo.Put(property("h7", "Hanoi Lotus Hotel", "Hà Nội", 4, 21.03, 105.85, 1000000, 4.1))

	second, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	assert.Greater(t, second.Generation, first.Generation)
	_, ok := second.Get("x1")
	assert.False(t, ok)
	_, ok = second.Get("h7")
	assert.True(t, ok)
	assert.False(t, e.text.has("x1"))
	assert.True(t, e.geo.has("h7"))
}

func TestIndexing_RebuildSourceError(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	repo := new(MockDocumentRepository)
	repo.On("ListAfter", mock.Anything, "", 500).Return(nil, errIndexDown)
	indexer := services.NewIndexingService(repo, e.docs, e.text, e.geo, nil, nil)

	before := e.docs.Current()
	_, err := indexer.Rebuild(context.Background())

	assert.ErrorIs(t, err, errIndexDown)
	assert.Same(t, before, e.docs.Current())
	repo.AssertExpectations(t)
}

func TestIndexing_HandleChangedEvent(t *testing.T) {
	e, repo, indexer := newIndexedEngine(t, nil)
	ctx := context.Background()
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	boutique := services.RawSearchParams{Query: "boutique"}
	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, boutique))

	renamed := property("h2", "Old Quarter Heritage Hotel", "Ha Noi", 4, 21.0340, 105.8500, 1200000, 4.4)
	repo.Put(renamed)
	require.NoError(t, indexer.HandleEvent(ctx, entities.NewPropertyEvent("h2", entities.PropertyEventTypeChanged, "name")))

	doc, ok := e.docs.Current().Get("h2")
	require.True(t, ok)
	assert.Equal(t, "Old Quarter Heritage Hotel", doc.Name["en"])

	result, err := e.search.Search(ctx, e.normalize(t, boutique, entities.RequestClassSearch))
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, result.Meta.Cache)
	assert.Empty(t, result.Hits)

	result, err = e.search.Search(ctx, e.normalize(t, services.RawSearchParams{Query: "heritage"}, entities.RequestClassSearch))
	require.NoError(t, err)
	assert.Equal(t, []string{"h2"}, result.IDs())
}

func TestIndexing_HandleDeletedEvent(t *testing.T) {
	e, _, indexer := newIndexedEngine(t, nil)
	ctx := context.Background()
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	require.NoError(t, indexer.HandleEvent(ctx, entities.NewPropertyEvent("h3", entities.PropertyEventTypeDeleted)))

	_, ok := e.docs.Current().Get("h3")
	assert.False(t, ok)
	assert.False(t, e.text.has("h3"))
	assert.False(t, e.geo.has("h3"))
}

func TestIndexing_ChangedEventForMissingPropertyDeletes(t *testing.T) {
	e, repo, indexer := newIndexedEngine(t, nil)
	ctx := context.Background()
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	repo.Remove("h4")
	require.NoError(t, indexer.HandleEvent(ctx, entities.NewPropertyEvent("h4", entities.PropertyEventTypeChanged)))

	_, ok := e.docs.Current().Get("h4")
	assert.False(t, ok)
	assert.False(t, e.text.has("h4"))
}

func TestIndexing_HandleEventLoadError(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	repo := new(MockDocumentRepository)
	repo.On("GetByIDs", mock.Anything, []string{"h1"}).Return(nil, errIndexDown)
	indexer := services.NewIndexingService(repo, e.docs, e.text, e.geo, nil, nil)

	before := e.docs.Current()
	err := indexer.HandleEvent(context.Background(), entities.NewPropertyEvent("h1", entities.PropertyEventTypeChanged))

	assert.ErrorIs(t, err, errIndexDown)
	assert.Same(t, before, e.docs.Current())
	repo.AssertExpectations(t)
}

func TestIndexing_ConsumesBusEvents(t *testing.T) {
	bus := events.NewMemoryEventBus()
	defer bus.Close()

	e, repo, indexer := newIndexedEngine(t, bus)
	_, err := indexer.Rebuild(context.Background())
	require.NoError(t, err)

	require.NoError(t, indexer.Start())
	defer indexer.Stop()

	repo.Put(property("h8", "Hoan Kiem Lake Hotel", "Hà Nội", 4, 21.0287, 105.8524, 1800000, 4.5))
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelPropertyUpdates,
		entities.NewPropertyEvent("h8", entities.PropertyEventTypeChanged)))

	assert.Eventually(t, func() bool {
		_, ok := e.docs.Current().Get("h8")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, e.text.has("h8"))
}

func TestIndexing_RebuildInvalidatesCachedResults(t *testing.T) {
	e, repo, indexer := newIndexedEngine(t, nil)
	ctx := context.Background()
	_, err := indexer.Rebuild(ctx)
	require.NoError(t, err)

	resort := services.RawSearchParams{Query: "resort"}
	assert.Equal(t, entities.CacheStatusMiss, searchCached(t, e, resort))
	assert.Equal(t, entities.CacheStatusHit, searchCached(t, e, resort))

	repo.Remove("d1")
	_, err = indexer.Rebuild(ctx)
	require.NoError(t, err)

	result, err := e.search.Search(ctx, e.normalize(t, resort, entities.RequestClassSearch))
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, result.Meta.Cache)
	assert.Empty(t, result.Hits)
}

func TestIndexing_PeriodicRebuild(t *testing.T) {
	e, repo, indexer := newIndexedEngine(t, nil)
	_, err := indexer.Rebuild(context.Background())
	require.NoError(t, err)

	indexer.StartPeriodicRebuild(20 * time.Millisecond)
	defer indexer.Stop()

	repo.Put(property("h9", "Tay Ho Residence", "Hà Nội", 4, 21.0650, 105.8250, 1400000, 4.3))

	assert.Eventually(t, func() bool {
		_, ok := e.docs.Current().Get("h9")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
