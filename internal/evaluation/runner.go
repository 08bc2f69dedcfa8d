package evaluation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

const evalPageSize = 10

// SearchService is the ranked search the runner scores
type SearchService interface {
	Search(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, error)
}

// Runner runs golden queries through the search path and scores the rankings.
type Runner struct {
	search     SearchService
	normalizer *services.Normalizer
	now        func() time.Time
}

func NewRunner(search SearchService, normalizer *services.Normalizer) *Runner {
	return &Runner{search: search, normalizer: normalizer, now: time.Now}
}

// Run evaluates every query. A query that fails still counts toward the
// totals with zero scores.
func (r *Runner) Run(ctx context.Context, queries []GoldenQuery) (*EvalSummary, error) {
	summary := &EvalSummary{
		TotalQueries: len(queries),
		ByKind:       make(map[QueryKind]*KindStat),
		Results:      make([]EvalResult, 0, len(queries)),
	}

	for _, gq := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := r.runOne(ctx, gq)
		summary.Results = append(summary.Results, result)
		r.updateSummary(summary, result)
	}

	r.finalizeSummary(summary)
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, gq GoldenQuery) EvalResult {
	result := EvalResult{QueryID: gq.ID, Query: gq.Query, Kind: gq.Kind}

	class := entities.RequestClassSearch
	if gq.Kind == KindNearby {
		class = entities.RequestClassLocation
	}
	req, err := r.normalizer.Normalize(rawParams(gq), class)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	start := r.now()
	res, err := r.search.Search(ctx, req)
	result.Latency = r.now().Sub(start)
	if err != nil {
		log.Warn().Err(err).Str("query_id", gq.ID).Msg("golden query failed")
		result.Err = err.Error()
		return result
	}

	result.Retrieved = res.IDs()
	result.ResultCount = res.Pagination.Total
	result.RecallAt10 = RecallAtK(gq.ExpectedIDs, result.Retrieved, evalPageSize)
	result.MRRAt10 = MRRAtK(gq.ExpectedIDs, result.Retrieved, evalPageSize)
	result.NDCGAt10 = NDCGAtK(gq.ExpectedIDs, result.Retrieved, evalPageSize)
	return result
}

func rawParams(gq GoldenQuery) services.RawSearchParams {
	raw := services.RawSearchParams{
		Query:    gq.Query,
		Language: gq.Language,
		Size:     strconv.Itoa(evalPageSize),
		Cities:   strings.Join(gq.Cities, ","),
		MaxPrice: gq.MaxPrice,
	}
	if len(gq.Stars) > 0 {
		stars := make([]string, len(gq.Stars))
		for i, s := range gq.Stars {
			stars[i] = strconv.Itoa(s)
		}
		raw.Stars = strings.Join(stars, ",")
	}
	if gq.Lat != nil && gq.Lon != nil {
		raw.Lat = strconv.FormatFloat(*gq.Lat, 'f', -1, 64)
		raw.Lon = strconv.FormatFloat(*gq.Lon, 'f', -1, 64)
		if gq.RadiusKm > 0 {
			raw.Radius = strconv.FormatFloat(gq.RadiusKm, 'f', -1, 64)
		}
	}
	return raw
}

func (r *Runner) updateSummary(s *EvalSummary, res EvalResult) {
	if res.Err != "" {
		s.FailedQueries++
	}
	s.AvgRecallAt10 += res.RecallAt10
	s.AvgMRRAt10 += res.MRRAt10
	s.AvgNDCGAt10 += res.NDCGAt10
	s.AvgLatency += res.Latency
	if res.ResultCount > 0 {
		s.QueriesWithHits++
	}

	ks, ok := s.ByKind[res.Kind]
	if !ok {
		ks = &KindStat{}
		s.ByKind[res.Kind] = ks
	}
	ks.Count++
	ks.AvgRecallAt10 += res.RecallAt10
	ks.AvgMRRAt10 += res.MRRAt10
	ks.AvgNDCGAt10 += res.NDCGAt10
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.TotalQueries > 0 {
		n := float64(s.TotalQueries)
		s.AvgRecallAt10 /= n
		s.AvgMRRAt10 /= n
		s.AvgNDCGAt10 /= n
		s.AvgLatency /= time.Duration(s.TotalQueries)
		s.ZeroResultRate = float64(s.TotalQueries-s.QueriesWithHits) / n
	}

	for _, ks := range s.ByKind {
		n := float64(ks.Count)
		ks.AvgRecallAt10 /= n
		ks.AvgMRRAt10 /= n
		ks.AvgNDCGAt10 /= n
	}
}
