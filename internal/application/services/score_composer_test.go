package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

func hitIDs(hits []entities.SearchHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Property.ID
	}
	return ids
}

func km(v float64) *float64 { return &v }

func TestScoreComposer_DeterministicTieBreak(t *testing.T) {
	composer := services.NewScoreComposer(testRankingConfig(), services.NewPopularityStore(nil))

	a := property("b", "Twin A", "Hanoi", 3, 0, 0, 1000000, 4.0)
	b := property("a", "Twin B", "Hanoi", 3, 0, 0, 1000000, 4.0)
	c := property("c", "Twin C", "Hanoi", 3, 0, 0, 1000000, 4.5)
	// rating feeds the review signal, so pin it to keep final scores equal
	for _, d := range []*entities.SearchDocument{a, b, c} {
		d.Boost.ReviewScore = 0.5
	}

	req := &entities.SearchRequest{Sort: entities.SortRelevance, Currency: "VND", Language: "en"}
	hits := composer.Compose(req, []services.Candidate{{Doc: a}, {Doc: b}, {Doc: c}})

	assert.Equal(t, []string{"c", "a", "b"}, hitIDs(hits))
	assert.Equal(t, hits[1].Score.Final, hits[2].Score.Final)
}

func TestScoreComposer_PromotionIsBounded(t *testing.T) {
	composer := services.NewScoreComposer(testRankingConfig(), services.NewPopularityStore(nil))

	promoted := property("p", "Promoted Hotel", "Hanoi", 3, 0, 0, 1000000, 3.0)
	promoted.Boost.Promoted = true
	relevant := property("r", "Relevant Hotel", "Hanoi", 3, 0, 0, 1000000, 3.0)

	req := &entities.SearchRequest{Sort: entities.SortRelevance, Currency: "VND", Language: "en"}
	hits := composer.Compose(req, []services.Candidate{
		{Doc: promoted, Relevance: 0.2},
		{Doc: relevant, Relevance: 1.0},
	})

	require.Len(t, hits, 2)
	assert.Equal(t, "r", hits[0].Property.ID)
	assert.InDelta(t, 0.1, hits[1].Score.Promoted, 1e-9)
	assert.True(t, hits[1].Property.Promoted)

	// at equal relevance the bonus decides
	hits = composer.Compose(req, []services.Candidate{
		{Doc: relevant, Relevance: 0.5},
		{Doc: promoted, Relevance: 0.5},
	})
	assert.Equal(t, "p", hits[0].Property.ID)
	assert.InDelta(t, 0.2*0.1, hits[0].Score.Final-hits[1].Score.Final, 1e-9)
}

func TestScoreComposer_FinalScoreComposition(t *testing.T) {
	composer := services.NewScoreComposer(testRankingConfig(), services.NewPopularityStore(nil))

	doc := property("x", "Scored Hotel", "Hanoi", 4, 0, 0, 1000000, 4.0)
	doc.Boost = entities.SearchBoost{PopularityScore: 0.5, ConversionRate: 0.2}

	req := &entities.SearchRequest{Sort: entities.SortRelevance, Currency: "VND", Language: "en"}
	hits := composer.Compose(req, []services.Candidate{{Doc: doc, Relevance: 0.8, DistanceKm: km(10)}})

	require.Len(t, hits, 1)
	s := hits[0].Score
	assert.InDelta(t, 0.8, s.Relevance, 1e-9)
	assert.InDelta(t, 0.5, s.Distance, 1e-9)
	assert.InDelta(t, 0.8, s.Review, 1e-9)
	assert.InDelta(t, 0.4*0.5+0.3*0.2+0.3*0.8, s.Business, 1e-9)
	assert.InDelta(t, 0.6*0.8+0.2*0.5+0.2*s.Business, s.Final, 1e-9)
}

func TestScoreComposer_UsesCommittedPopularity(t *testing.T) {
	store := services.NewPopularityStore(nil)
	snapshot := entities.EmptyPopularitySnapshot()
	snapshot.Generation = 1
	snapshot.Properties["cold"] = &entities.PopularityRecord{Key: "cold", TrendingScore: 0.9}
	require.NoError(t, store.Commit(context.Background(), snapshot))

	composer := services.NewScoreComposer(testRankingConfig(), store)
	hot := property("hot", "Hot Hotel", "Hanoi", 3, 0, 0, 0, 0)
	hot.Boost.PopularityScore = 0.7
	cold := property("cold", "Cold Hotel", "Hanoi", 3, 0, 0, 0, 0)

	req := &entities.SearchRequest{Sort: entities.SortPopularity, Currency: "VND", Language: "en"}
	hits := composer.Compose(req, []services.Candidate{{Doc: hot}, {Doc: cold}})

	assert.Equal(t, []string{"cold", "hot"}, hitIDs(hits))
	assert.InDelta(t, 0.9, hits[0].Score.Popularity, 1e-9)
	assert.InDelta(t, 0.7, hits[1].Score.Popularity, 1e-9)
}

func TestScoreComposer_SortModes(t *testing.T) {
	composer := services.NewScoreComposer(testRankingConfig(), services.NewPopularityStore(nil))

	cheap := property("cheap", "Cheap", "Hanoi", 2, 0, 0, 500000, 3.0)
	pricey := property("pricey", "Pricey", "Hanoi", 5, 0, 0, 4000000, 4.9)
	unpriced := property("unpriced", "Unpriced", "Hanoi", 3, 0, 0, 0, 4.0)
	cands := []services.Candidate{
		{Doc: unpriced, DistanceKm: km(1)},
		{Doc: pricey, DistanceKm: km(3)},
		{Doc: cheap, DistanceKm: km(2)},
	}

	tests := []struct {
		sort entities.SortMode
		want []string
	}{
		{entities.SortPriceAsc, []string{"cheap", "pricey", "unpriced"}},
		{entities.SortPriceDesc, []string{"pricey", "cheap", "unpriced"}},
		{entities.SortRatingDesc, []string{"pricey", "unpriced", "cheap"}},
		{entities.SortDistanceAsc, []string{"unpriced", "cheap", "pricey"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			req := &entities.SearchRequest{Sort: tt.sort, Currency: "VND", Language: "en"}
			assert.Equal(t, tt.want, hitIDs(composer.Compose(req, cands)))
		})
	}
}
