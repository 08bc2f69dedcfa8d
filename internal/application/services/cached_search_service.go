package services

import (
	"context"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// CachedSearchService decorates the pipeline with the cache layer. Entries are
// keyed by the popularity generation they were ranked with, so a committed
// snapshot retires every ranking built from the previous one.
type CachedSearchService struct {
	pipeline   SearchExecutor
	layer      *CacheLayer
	popularity *PopularityStore
	metrics    *observability.Metrics
}

// NewCachedSearchService creates a new cached search service
func NewCachedSearchService(pipeline SearchExecutor, layer *CacheLayer, popularity *PopularityStore, metrics *observability.Metrics) *CachedSearchService {
	return &CachedSearchService{pipeline: pipeline, layer: layer, popularity: popularity, metrics: metrics}
}

func (s *CachedSearchService) generation() uint64 {
	if s.popularity == nil {
		return 0
	}
	return s.popularity.Current().Generation
}

func tierForClass(class entities.RequestClass) string {
	switch class {
	case entities.RequestClassFacets:
		return TierFacets
	case entities.RequestClassLocation:
		return TierLocation
	default:
		return TierSearch
	}
}

// Search returns a result page with response metadata attached. Only validation
// happens before this point, so the result is always well formed.
func (s *CachedSearchService) Search(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, error) {
	start := time.Now()

	result, meta, err := fetchCached(ctx, s.layer, cacheRequest[*entities.SearchResult]{
		tier:       tierForClass(req.Class),
		hash:       req.CacheKey(),
		generation: s.generation(),
		compute:    s.compute(req),
		tags:       (*entities.SearchResult).IDs,
		empty: func() *entities.SearchResult {
			return entities.EmptySearchResult(req.Page, req.PageSize)
		},
	})
	if err != nil {
		return nil, err
	}

	meta.LatencyMs = time.Since(start).Milliseconds()
	for _, f := range meta.Fallbacks {
		observability.RecordDegradation(ctx, s.metrics, f)
	}
	return result.WithMeta(meta), nil
}

func (s *CachedSearchService) compute(req *entities.SearchRequest) func(context.Context) (*entities.SearchResult, []string, error) {
	return func(ctx context.Context) (*entities.SearchResult, []string, error) {
		return s.pipeline.Execute(ctx, req)
	}
}
