package services

import (
	"sort"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

// Candidate is a document that passed text, geo and hard filters
type Candidate struct {
	Doc        *entities.SearchDocument
	Relevance  float64
	Exact      bool
	DistanceKm *float64
}

// ScoreComposer combines relevance, distance and business signals into a final
// score and orders candidates deterministically
type ScoreComposer struct {
	weights    config.RankingConfig
	popularity *PopularityStore
}

// NewScoreComposer creates a new score composer
func NewScoreComposer(weights config.RankingConfig, popularity *PopularityStore) *ScoreComposer {
	return &ScoreComposer{weights: weights, popularity: popularity}
}

type scoredCandidate struct {
	Candidate
	score    entities.ScoreBreakdown
	price    float64
	hasPrice bool
}

// Compose scores and sorts candidates for the request's sort mode
func (c *ScoreComposer) Compose(req *entities.SearchRequest, candidates []Candidate) []entities.SearchHit {
	snapshot := c.popularity.Current()

	scored := make([]scoredCandidate, len(candidates))
	for i, cand := range candidates {
		scored[i] = scoredCandidate{
			Candidate: cand,
			score:     c.breakdown(cand, snapshot),
		}
		scored[i].price, scored[i].hasPrice = cand.Doc.LowestPrice(req.Currency)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return less(req.Sort, &scored[i], &scored[j])
	})

	lang := ContentLanguage(req.Language)
	hits := make([]entities.SearchHit, len(scored))
	for i, s := range scored {
		hits[i] = entities.SearchHit{
			Property:   s.Doc.Summary(lang, req.Currency),
			Score:      s.score,
			DistanceKm: s.DistanceKm,
			ExactMatch: s.Exact,
		}
	}
	return hits
}

func (c *ScoreComposer) breakdown(cand Candidate, snapshot *entities.PopularitySnapshot) entities.ScoreBreakdown {
	w := c.weights
	doc := cand.Doc

	popularity, ok := snapshot.PropertyScore(doc.ID)
	if !ok {
		popularity = doc.Boost.PopularityScore
	}
	review := doc.Boost.ReviewScore
	if review <= 0 && doc.RatingAverage > 0 {
		review = doc.RatingAverage / 5
	}
	promoted := 0.0
	if doc.Boost.Promoted {
		promoted = w.PromotedBonus
	}

	b := entities.ScoreBreakdown{
		Relevance:  cand.Relevance,
		Popularity: clamp(popularity, 0, 1),
		Conversion: clamp(doc.Boost.ConversionRate, 0, 1),
		Review:     clamp(review, 0, 1),
		Promoted:   promoted,
	}
	b.Business = w.PopularityWeight*b.Popularity + w.ConversionWeight*b.Conversion + w.ReviewWeight*b.Review + b.Promoted
	if cand.DistanceKm != nil {
		decay := w.DistanceDecayKm
		if decay <= 0 {
			decay = 1
		}
		b.Distance = 1 / (1 + *cand.DistanceKm/decay)
	}
	b.Final = w.RelevanceWeight*b.Relevance + w.DistanceWeight*b.Distance + w.BusinessWeight*b.Business
	return b
}

// less orders by the sort mode key, then final desc, rating desc, id asc
func less(mode entities.SortMode, a, b *scoredCandidate) bool {
	switch mode {
	case entities.SortPriceAsc, entities.SortPriceDesc:
		if a.hasPrice != b.hasPrice {
			return a.hasPrice
		}
		if a.hasPrice && a.price != b.price {
			if mode == entities.SortPriceAsc {
				return a.price < b.price
			}
			return a.price > b.price
		}
	case entities.SortRatingDesc:
		if a.Doc.RatingAverage != b.Doc.RatingAverage {
			return a.Doc.RatingAverage > b.Doc.RatingAverage
		}
	case entities.SortDistanceAsc:
		if (a.DistanceKm == nil) != (b.DistanceKm == nil) {
			return a.DistanceKm != nil
		}
		if a.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
	case entities.SortPopularity:
		if a.score.Popularity != b.score.Popularity {
			return a.score.Popularity > b.score.Popularity
		}
	}

	if a.score.Final != b.score.Final {
		return a.score.Final > b.score.Final
	}
	if a.Doc.RatingAverage != b.Doc.RatingAverage {
		return a.Doc.RatingAverage > b.Doc.RatingAverage
	}
	return a.Doc.ID < b.Doc.ID
}
