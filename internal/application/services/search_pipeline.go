package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// SearchExecutor runs an uncached search
type SearchExecutor interface {
	Execute(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, []string, error)
}

// SearchPipeline runs text and geo matching in parallel, then facets and scoring,
// all against one document snapshot generation
type SearchPipeline struct {
	docs    *DocumentStore
	text    *TextRanker
	geo     *GeoFilter
	facets  *FacetAggregator
	scorer  *ScoreComposer
	metrics *observability.Metrics
}

// NewSearchPipeline creates a new search pipeline
func NewSearchPipeline(
	docs *DocumentStore,
	text *TextRanker,
	geo *GeoFilter,
	facets *FacetAggregator,
	scorer *ScoreComposer,
	metrics *observability.Metrics,
) *SearchPipeline {
	return &SearchPipeline{
		docs:    docs,
		text:    text,
		geo:     geo,
		facets:  facets,
		scorer:  scorer,
		metrics: metrics,
	}
}

// Execute returns the result page and the fallback markers applied while computing it
func (p *SearchPipeline) Execute(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, []string, error) {
	ctx, span := observability.StartSpan(ctx, "search.pipeline")
	defer span.End()

	snapshot := p.docs.Current()

	var (
		textScores *TextScores
		geoMatches *GeoMatches
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		textScores = p.text.Rank(gctx, req, snapshot)
		observability.RecordStage(ctx, p.metrics, "text", time.Since(start))
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		geoMatches = p.geo.Filter(gctx, req.Location(), snapshot)
		observability.RecordStage(ctx, p.metrics, "geo", time.Since(start))
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	var fallbacks []string
	if textScores.Fallback != "" {
		fallbacks = append(fallbacks, textScores.Fallback)
	}
	if geoMatches != nil && geoMatches.Fallback != "" {
		fallbacks = append(fallbacks, geoMatches.Fallback)
	}

	base := candidateDocuments(snapshot, textScores, geoMatches)

	result := &entities.SearchResult{
		Hits:       []entities.SearchHit{},
		Generation: snapshot.Generation,
	}

	start := time.Now()
	facets, err := p.facets.Aggregate(ctx, req, base)
	observability.RecordStage(ctx, p.metrics, "facets", time.Since(start))
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("facet aggregation skipped")
		facets = &entities.FacetCounts{}
		fallbacks = append(fallbacks, entities.FallbackFacetsSkipped)
	}
	result.Facets = facets

	candidates := make([]Candidate, 0, len(base))
	for _, doc := range base {
		if !req.MatchesHardFilters(doc) {
			continue
		}
		cand := Candidate{Doc: doc}
		if textScores.Active() {
			cand.Relevance = textScores.Relevance[doc.ID]
			cand.Exact = textScores.Exact[doc.ID]
		}
		if geoMatches != nil {
			d := geoMatches.Distances[doc.ID]
			cand.DistanceKm = &d
		}
		candidates = append(candidates, cand)
	}

	result.Pagination = entities.NewPagination(len(candidates), req.Page, req.PageSize)
	if req.Class == entities.RequestClassFacets {
		return result, fallbacks, nil
	}

	start = time.Now()
	hits := p.scorer.Compose(req, candidates)
	observability.RecordStage(ctx, p.metrics, "score", time.Since(start))

	if offset := req.Offset(); offset < len(hits) {
		end := offset + req.PageSize
		if end > len(hits) {
			end = len(hits)
		}
		result.Hits = hits[offset:end]
	}

	return result, fallbacks, nil
}

// candidateDocuments intersects the text and geo stages in snapshot id order
func candidateDocuments(snapshot *DocumentSnapshot, text *TextScores, geo *GeoMatches) []*entities.SearchDocument {
	all := snapshot.All()
	out := make([]*entities.SearchDocument, 0, len(all))
	for _, doc := range all {
		if text.Active() {
			if _, ok := text.Relevance[doc.ID]; !ok {
				continue
			}
		}
		if geo != nil {
			if _, ok := geo.Distances[doc.ID]; !ok {
				continue
			}
		}
		out = append(out, doc)
	}
	return out
}
