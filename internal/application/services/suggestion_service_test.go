package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

func newSuggester(e *testEngine) *services.SuggestionService {
	return services.NewSuggestionService(e.docs, e.popularity, e.layer)
}

func suggestionTexts(list []entities.Suggestion) []string {
	out := make([]string, len(list))
	for i, sg := range list {
		out[i] = sg.Text
	}
	return out
}

func TestSuggest_VietnamesePrefix(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "ha no", Language: "vi", Limit: "5"})
	list, err := s.Suggest(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, list.Suggestions)
	assert.LessOrEqual(t, len(list.Suggestions), 5)

	first := list.Suggestions[0]
	assert.Equal(t, "Hà Nội", first.Text)
	assert.Equal(t, entities.SuggestionKindCity, first.Kind)
	assert.Equal(t, entities.MatchQualityPhrasePrefix, first.Quality)

	seen := make(map[string]bool)
	for _, sg := range list.Suggestions {
		key := utils.FoldText(sg.Text)
		assert.False(t, seen[key], "duplicate suggestion %q", sg.Text)
		seen[key] = true
		assert.LessOrEqual(t, sg.Quality, first.Quality)
	}
	assert.Equal(t, []string{"Hà Nội", "Hanoi Grand Hotel", "Hanoi Riverside Hotel"}, suggestionTexts(list.Suggestions))
}

func TestSuggest_CompactCityName(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	list, err := s.Suggest(context.Background(), e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "hanoi", Language: "en"}))
	require.NoError(t, err)

	require.NotEmpty(t, list.Suggestions)
	assert.Equal(t, "Hà Nội", list.Suggestions[0].Text)
	assert.Equal(t, entities.MatchQualityExact, list.Suggestions[0].Quality)
}

func TestSuggest_GeoHintBreaksTies(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	// next to the riverside hotel
	req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "hanoi", Language: "en", Lat: "21.12", Lon: "105.90"})
	list, err := s.Suggest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hà Nội", "Hanoi Riverside Hotel", "Hanoi Grand Hotel"}, suggestionTexts(list.Suggestions))
	require.NotNil(t, list.Suggestions[1].DistanceKm)
	assert.InDelta(t, 0, *list.Suggestions[1].DistanceKm, 0.001)
}

func TestSuggest_PopularityOutranksDistance(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	snapshot := entities.EmptyPopularitySnapshot()
	snapshot.Generation = 1
	snapshot.Properties["h1"] = &entities.PopularityRecord{Kind: entities.PopularityKindProperty, Key: "h1", TrendingScore: 0.8}
	require.NoError(t, e.popularity.Commit(context.Background(), snapshot))

	req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "hanoi", Language: "en", Lat: "21.12", Lon: "105.90"})
	list, err := s.Suggest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hà Nội", "Hanoi Grand Hotel", "Hanoi Riverside Hotel"}, suggestionTexts(list.Suggestions))
	assert.Equal(t, 0.8, list.Suggestions[1].Popularity)
}

func TestSuggest_DeduplicatesText(t *testing.T) {
	docs := []*entities.SearchDocument{
		property("a1", "Lotus Hotel", "Hà Nội", 3, 21.03, 105.85, 900000, 4),
		property("a2", "Lotus Hotel", "Đà Nẵng", 3, 16.05, 108.20, 900000, 4),
		property("a3", "Lotus Garden", "Đà Nẵng", 3, 16.06, 108.21, 900000, 4),
	}
	e := newTestEngine(t, docs)
	s := newSuggester(e)

	list, err := s.Suggest(context.Background(), e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "lotus", Language: "en"}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Lotus Hotel", "Lotus Garden"}, suggestionTexts(list.Suggestions))
}

func TestSuggest_LimitIsCapped(t *testing.T) {
	docs := make([]*entities.SearchDocument, 0, 30)
	for i := 0; i < 30; i++ {
		docs = append(docs, property(fmt.Sprintf("p%02d", i), fmt.Sprintf("Hotel %02d", i), "Huế", 3, 16.46, 107.59, 500000, 4))
	}
	e := newTestEngine(t, docs)
	s := newSuggester(e)

	req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "hotel", Language: "en", Limit: "50"})
	assert.Equal(t, 10, req.Limit)

	list, err := s.Suggest(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, list.Suggestions, 10)
}

func TestSuggest_EmptyPrefix(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	list, err := s.Suggest(context.Background(), e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "   "}))
	require.NoError(t, err)

	assert.NotNil(t, list.Suggestions)
	assert.Empty(t, list.Suggestions)
	assert.Equal(t, entities.CacheStatusBypass, list.Meta.Cache)
}

func TestSuggest_LiteralMode(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)

	t.Run("special characters", func(t *testing.T) {
		req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "ha*noi", Language: "vi"})
		require.True(t, req.Literal)

		list, err := s.Suggest(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, suggestionTexts(list.Suggestions), "Hà Nội")
	})

	t.Run("unsupported language", func(t *testing.T) {
		req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "saigon", Language: "xx"})
		require.True(t, req.Literal)

		list, err := s.Suggest(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, []string{"Saigon Central Hotel"}, suggestionTexts(list.Suggestions))
	})

	t.Run("substring", func(t *testing.T) {
		req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "airport", Language: "xx"})

		list, err := s.Suggest(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, list.Suggestions, 1)
		assert.Equal(t, "Noi Bai Airport Hotel", list.Suggestions[0].Text)
		assert.Equal(t, entities.MatchQualityTokenPrefix, list.Suggestions[0].Quality)
	})
}

func TestSuggest_CachedPerGeneration(t *testing.T) {
	e := newTestEngine(t, fixtureDocuments())
	s := newSuggester(e)
	ctx := context.Background()
	req := e.normalizer.NormalizeSuggest(services.RawSuggestParams{Query: "hanoi", Language: "en"})

	first, err := s.Suggest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, first.Meta.Cache)

	second, err := s.Suggest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusHit, second.Meta.Cache)
	assert.Equal(t, first.Suggestions, second.Suggestions)

	e.docs.Apply([]*entities.SearchDocument{
		property("h7", "Hanoi Lotus Hotel", "Hà Nội", 4, 21.03, 105.85, 1000000, 4.1),
	}, nil)
	require.NoError(t, e.layer.BumpVersion(ctx, services.TierSuggestions))

	third, err := s.Suggest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entities.CacheStatusMiss, third.Meta.Cache)
	assert.Contains(t, suggestionTexts(third.Suggestions), "Hanoi Lotus Hotel")
}
