package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zatekoja/propertysearch/backend/internal/adapters/cache"
	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

var errIndexDown = errors.New("index unavailable")

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		DefaultPageSize:    20,
		MaxPageSize:        100,
		MaxPage:            50,
		DefaultRadiusKm:    10,
		MinRadiusKm:        0.1,
		MaxRadiusKm:        100,
		DefaultCurrency:    "VND",
		DefaultSuggestions: 5,
		MaxSuggestions:     10,
		TextCandidateLimit: 1000,
		PriceBuckets:       []float64{500000, 1000000, 2000000, 5000000},
		TextTimeout:        time.Second,
		GeoTimeout:         time.Second,
		RequestTimeout:     2 * time.Second,
	}
}

func testRankingConfig() config.RankingConfig {
	return config.RankingConfig{
		NameBoost:        3,
		CityBoost:        2,
		DescriptionBoost: 1,
		ExactNameBoost:   0.5,
		RelevanceWeight:  0.6,
		DistanceWeight:   0.2,
		BusinessWeight:   0.2,
		DistanceDecayKm:  10,
		PopularityWeight: 0.4,
		ConversionWeight: 0.3,
		ReviewWeight:     0.3,
		PromotedBonus:    0.1,
	}
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Backend:        "memory",
		KeyPrefix:      "test",
		LocalEntries:   1000,
		StaleFactor:    6,
		SearchTTL:      5 * time.Minute,
		SuggestionsTTL: 3 * time.Minute,
		PopularTTL:     30 * time.Minute,
		FacetsTTL:      10 * time.Minute,
		LocationTTL:    5 * time.Minute,
	}
}

func vnd(price float64) []entities.RoomTypeSummary {
	return []entities.RoomTypeSummary{{Name: "Standard", MaxOccupancy: 2, AvailableCount: 3, BasePrice: price, Currency: "VND"}}
}

func property(id, name, city string, stars int, lat, lon, price, rating float64) *entities.SearchDocument {
	doc := &entities.SearchDocument{
		ID:            id,
		Name:          map[string]string{"en": name},
		Description:   map[string]string{"en": "A stay in " + city},
		PropertyType:  "hotel",
		StarRating:    stars,
		City:          city,
		CountryCode:   "VN",
		RatingAverage: rating,
		RatingCount:   100,
		Amenities:     []entities.Amenity{{ID: "wifi", Name: "Wi-Fi"}},
	}
	if lat != 0 || lon != 0 {
		doc.Location = &entities.GeoPoint{Latitude: lat, Longitude: lon}
	}
	if price > 0 {
		doc.RoomTypes = vnd(price)
	}
	return doc
}

// fixtureDocuments is a small catalogue centred on Hanoi (21.0285, 105.8542)
func fixtureDocuments() []*entities.SearchDocument {
	h1 := property("h1", "Hanoi Grand Hotel", "Hà Nội", 5, 21.0285, 105.8542, 2500000, 4.6)
	h1.Amenities = append(h1.Amenities, entities.Amenity{ID: "pool", Name: "Pool"})
	h2 := property("h2", "Old Quarter Boutique Hotel", "Ha Noi", 4, 21.0340, 105.8500, 1200000, 4.4)
	h3 := property("h3", "Lake View Hotel", "Hanoi", 3, 21.0600, 105.8200, 800000, 4.0)
	h4 := property("h4", "West Lake Hostel", "Hà Nội", 0, 21.0700, 105.8100, 300000, 3.8)
	h4.PropertyType = "hostel"
	h4.Amenities = nil
	h5 := property("h5", "Hanoi Riverside Hotel", "Hà Nội", 4, 21.1200, 105.9000, 6000000, 4.2)
	h6 := property("h6", "Noi Bai Airport Hotel", "Hà Nội", 3, 21.2187, 105.8042, 1500000, 3.9)
	s1 := property("s1", "Saigon Central Hotel", "Hồ Chí Minh", 4, 10.7769, 106.7009, 2000000, 4.3)
	d1 := property("d1", "Da Nang Beach Resort", "Đà Nẵng", 5, 16.0544, 108.2022, 3000000, 4.7)
	d1.PropertyType = "resort"
	x1 := property("x1", "Nowhere Inn", "", 0, 0, 0, 0, 0)
	x1.PropertyType = ""
	x1.Amenities = nil
	return []*entities.SearchDocument{h1, h2, h3, h4, h5, h6, s1, d1, x1}
}

// fakeTextIndex scores a field by the number of query tokens it contains
type fakeTextIndex struct {
	mu      sync.RWMutex
	docs    map[string]*entities.SearchDocument
	err     error
	queries atomic.Int64
}

func newFakeTextIndex() *fakeTextIndex {
	return &fakeTextIndex{docs: make(map[string]*entities.SearchDocument)}
}

func (f *fakeTextIndex) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeTextIndex) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeTextIndex) SearchField(ctx context.Context, q providers.FieldQuery) (map[string]float64, error) {
	f.queries.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]float64)
	for id, doc := range f.docs {
		var text string
		switch q.Field {
		case providers.TextFieldName:
			text = strings.Join(doc.Names(), " ")
		case providers.TextFieldCity:
			text = doc.City
		default:
			text = doc.Description[strings.TrimPrefix(q.Field, providers.DescriptionField(""))]
		}
		tokens := make(map[string]bool)
		for _, tok := range utils.FoldAndTokenize(text) {
			tokens[tok] = true
		}
		score := 0.0
		for _, tok := range q.Tokens {
			if tokens[tok] {
				score++
			}
		}
		if score > 0 {
			out[id] = score
		}
	}
	return out, nil
}

// fakeGeoIndex answers bounding box queries over indexed locations
type fakeGeoIndex struct {
	mu     sync.RWMutex
	points map[string]entities.GeoPoint
	err    error
}

func newFakeGeoIndex() *fakeGeoIndex {
	return &fakeGeoIndex{points: make(map[string]entities.GeoPoint)}
}

func (f *fakeGeoIndex) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range docs {
		if doc.Location.Valid() {
			f.points[doc.ID] = *doc.Location
		} else {
			delete(f.points, doc.ID)
		}
	}
	return nil
}

func (f *fakeGeoIndex) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points, id)
	}
	return nil
}

func (f *fakeGeoIndex) WithinBox(ctx context.Context, box entities.BoundingBox) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var ids []string
	for id, p := range f.points {
		if box.Contains(p) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// countingExecutor counts upstream executions and can block or fail them
type countingExecutor struct {
	inner   services.SearchExecutor
	calls   atomic.Int64
	delay   time.Duration
	failing atomic.Bool
	// when set, each execution reports on started and waits for release
	started chan struct{}
	release chan struct{}
}

func (c *countingExecutor) Execute(ctx context.Context, req *entities.SearchRequest) (*entities.SearchResult, []string, error) {
	c.calls.Add(1)
	if c.started != nil {
		c.started <- struct{}{}
		<-c.release
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failing.Load() {
		return nil, nil, errIndexDown
	}
	return c.inner.Execute(ctx, req)
}

// failingCache fails every operation, as an unreachable backend would
type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errIndexDown }
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errIndexDown
}
func (failingCache) Delete(context.Context, ...string) error { return errIndexDown }
func (failingCache) Exists(context.Context, string) (bool, error) { return false, errIndexDown }
func (failingCache) Incr(context.Context, string) (int64, error) { return 0, errIndexDown }
func (failingCache) Ping(context.Context) error { return errIndexDown }
func (failingCache) TaggedKeys(context.Context, string) ([]string, error) {
	return nil, errIndexDown
}
func (failingCache) Tag(context.Context, string, []string, time.Duration) error {
	return errIndexDown
}

// testEngine wires the search stack over fakes and an in-process cache
type testEngine struct {
	docs       *services.DocumentStore
	popularity *services.PopularityStore
	text       *fakeTextIndex
	geo        *fakeGeoIndex
	normalizer *services.Normalizer
	pipeline   *services.SearchPipeline
	executor   *countingExecutor
	cache      *cache.MemoryAdapter
	layer      *services.CacheLayer
	search     *services.CachedSearchService
}

func newTestEngine(t *testing.T, docs []*entities.SearchDocument) *testEngine {
	t.Helper()

	e := &testEngine{
		docs:       services.NewDocumentStore(),
		popularity: services.NewPopularityStore(nil),
		text:       newFakeTextIndex(),
		geo:        newFakeGeoIndex(),
	}
	ctx := context.Background()
	require.NoError(t, e.text.Index(ctx, docs))
	require.NoError(t, e.geo.Index(ctx, docs))
	e.docs.Replace(docs)

	cfg := testSearchConfig()
	e.normalizer = services.NewNormalizer(cfg)
	e.pipeline = services.NewSearchPipeline(
		e.docs,
		services.NewTextRanker(e.text, testRankingConfig(), cfg.TextCandidateLimit, cfg.TextTimeout),
		services.NewGeoFilter(e.geo, cfg.MaxRadiusKm, cfg.GeoTimeout),
		services.NewFacetAggregator(cfg.PriceBuckets),
		services.NewScoreComposer(testRankingConfig(), e.popularity),
		nil,
	)
	e.executor = &countingExecutor{inner: e.pipeline}

	memCache, err := cache.NewMemoryAdapter(1000)
	require.NoError(t, err)
	e.cache = memCache
	e.layer = services.NewCacheLayer(memCache, testCacheConfig(), cfg.RequestTimeout, nil)
	e.search = services.NewCachedSearchService(e.executor, e.layer, e.popularity, nil)
	return e
}

func (e *testEngine) normalize(t *testing.T, raw services.RawSearchParams, class entities.RequestClass) *entities.SearchRequest {
	t.Helper()
	req, err := e.normalizer.Normalize(raw, class)
	require.NoError(t, err)
	return req
}
