package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.SearchResult), args.Error(1)
}

func resultOf(ids ...string) *entities.SearchResult {
	hits := make([]entities.SearchHit, len(ids))
	for i, id := range ids {
		hits[i] = entities.SearchHit{Property: entities.PropertySummary{ID: id}}
	}
	return &entities.SearchResult{Hits: hits, Pagination: entities.NewPagination(len(ids), 0, evalPageSize)}
}

func newTestRunner(svc SearchService) *Runner {
	r := NewRunner(svc, services.NewNormalizer(config.SearchConfig{
		DefaultPageSize: 20,
		MaxPageSize:     100,
		MaxPage:         50,
		DefaultRadiusKm: 10,
		MinRadiusKm:     0.1,
		MaxRadiusKm:     100,
		DefaultCurrency: "VND",
	}))
	tick := time.Unix(0, 0)
	r.now = func() time.Time {
		tick = tick.Add(2 * time.Millisecond)
		return tick
	}
	return r
}

func isQuery(q string) interface{} {
	return mock.MatchedBy(func(req *entities.SearchRequest) bool { return req.Query == q })
}

func TestRunner_ScoresAndAggregates(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Search", mock.Anything, isQuery("grand hotel")).Return(resultOf("h1", "h2"), nil)
	svc.On("Search", mock.Anything, isQuery("resort")).Return(resultOf("x1", "d1"), nil)
	svc.On("Search", mock.Anything, isQuery("nowhere")).Return(resultOf(), nil)

	queries := []GoldenQuery{
		{ID: "q1", Query: "Grand Hotel", Kind: KindPropertyName, ExpectedIDs: []string{"h1"}, Difficulty: "easy"},
		{ID: "q2", Query: "resort", Kind: KindFiltered, ExpectedIDs: []string{"d1"}, Difficulty: "medium"},
		{ID: "q3", Query: "nowhere", Kind: KindFiltered, ExpectedIDs: []string{"z1"}, Difficulty: "hard"},
	}

	summary, err := newTestRunner(svc).Run(context.Background(), queries)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalQueries)
	assert.Zero(t, summary.FailedQueries)
	assert.Equal(t, 2, summary.QueriesWithHits)
	assert.InDelta(t, 1.0/3.0, summary.ZeroResultRate, floatTolerance)
	assert.InDelta(t, 2.0/3.0, summary.AvgRecallAt10, floatTolerance)
	assert.InDelta(t, 0.5, summary.AvgMRRAt10, floatTolerance)
	assert.Equal(t, 2*time.Millisecond, summary.AvgLatency)

	filtered := summary.ByKind[KindFiltered]
	require.NotNil(t, filtered)
	assert.Equal(t, 2, filtered.Count)
	assert.InDelta(t, 0.25, filtered.AvgMRRAt10, floatTolerance)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, []string{"h1", "h2"}, summary.Results[0].Retrieved)
	svc.AssertExpectations(t)
}

func TestRunner_NearbyUsesLocationClass(t *testing.T) {
	svc := new(MockSearchService)
	lat, lon := 16.0544, 108.2022
	svc.On("Search", mock.Anything, mock.MatchedBy(func(req *entities.SearchRequest) bool {
		loc := req.Location()
		return req.Class == entities.RequestClassLocation &&
			req.PageSize == evalPageSize &&
			loc != nil && loc.RadiusKm == 3
	})).Return(resultOf("d1"), nil)

	summary, err := newTestRunner(svc).Run(context.Background(), []GoldenQuery{
		{ID: "n1", Kind: KindNearby, Lat: &lat, Lon: &lon, RadiusKm: 3, ExpectedIDs: []string{"d1"}, Difficulty: "easy"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, summary.AvgNDCGAt10, floatTolerance)
	svc.AssertExpectations(t)
}

func TestRunner_FailedQueryCountsAsZero(t *testing.T) {
	svc := new(MockSearchService)
	svc.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("index down"))

	summary, err := newTestRunner(svc).Run(context.Background(), []GoldenQuery{
		{ID: "q1", Query: "hanoi", Kind: KindDestination, ExpectedIDs: []string{"h1"}, Difficulty: "easy"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailedQueries)
	assert.Equal(t, "index down", summary.Results[0].Err)
	assert.Zero(t, summary.AvgRecallAt10)
	assert.InDelta(t, 1.0, summary.ZeroResultRate, floatTolerance)
}

func TestRunner_InvalidRequestIsRecorded(t *testing.T) {
	svc := new(MockSearchService)
	lat := 21.03

	summary, err := newTestRunner(svc).Run(context.Background(), []GoldenQuery{
		{ID: "n1", Kind: KindNearby, Lat: &lat, ExpectedIDs: []string{"d1"}, Difficulty: "easy"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailedQueries)
	assert.NotEmpty(t, summary.Results[0].Err)
	svc.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(new(MockSearchService)).Run(ctx, []GoldenQuery{
		{ID: "q1", Query: "hanoi", Kind: KindDestination, ExpectedIDs: []string{"h1"}, Difficulty: "easy"},
	})
	assert.ErrorIs(t, err, context.Canceled)
}
