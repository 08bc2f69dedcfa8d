package entities

// ScoreBreakdown explains how a hit's final score was composed
type ScoreBreakdown struct {
	Relevance  float64 `json:"relevance"`
	Distance   float64 `json:"distance"`
	Business   float64 `json:"business"`
	Popularity float64 `json:"popularity"`
	Conversion float64 `json:"conversion"`
	Review     float64 `json:"review"`
	Promoted   float64 `json:"promoted"`
	Final      float64 `json:"final"`
}

// SearchHit is one ranked property in a result page
type SearchHit struct {
	Property   PropertySummary `json:"property"`
	Score      ScoreBreakdown  `json:"score"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
	ExactMatch bool            `json:"exact_match,omitempty"`
}

// FacetBucket is a single facet value and its count
type FacetBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facet is the bucket list for one category. Total is the number of documents the
// facet was computed over.
type Facet struct {
	Name    string        `json:"name"`
	Total   int           `json:"total"`
	Buckets []FacetBucket `json:"buckets"`
}

// Sum returns the sum of bucket counts
func (f *Facet) Sum() int {
	sum := 0
	for _, b := range f.Buckets {
		sum += b.Count
	}
	return sum
}

// Count returns the count of a bucket value, or zero
func (f *Facet) Count(value string) int {
	for _, b := range f.Buckets {
		if b.Value == value {
			return b.Count
		}
	}
	return 0
}

// FacetCounts groups the facets of a result
type FacetCounts struct {
	PriceRanges   Facet `json:"price_ranges"`
	Stars         Facet `json:"stars"`
	Cities        Facet `json:"cities"`
	PropertyTypes Facet `json:"property_types"`
	Amenities     Facet `json:"amenities"`
}

// Pagination describes the page returned
type Pagination struct {
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// NewPagination computes pagination for a total hit count
func NewPagination(total, page, pageSize int) Pagination {
	return Pagination{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasNext:  (page+1)*pageSize < total,
	}
}

// CacheStatus reports how the cache layer served a response
type CacheStatus string

const (
	CacheStatusHit    CacheStatus = "hit"
	CacheStatusMiss   CacheStatus = "miss"
	CacheStatusBypass CacheStatus = "bypass"
	CacheStatusStale  CacheStatus = "stale"
)

// Fallback markers reported in response metadata
const (
	FallbackTextLocalMatch      = "text_local_match"
	FallbackGeoScan             = "geo_scan"
	FallbackFacetsSkipped       = "facets_skipped"
	FallbackCacheUnavailable    = "cache_unavailable"
	FallbackStaleCache          = "stale_cache"
	FallbackUpstreamUnavailable = "upstream_unavailable"
)

// ResponseMeta is per-response metadata. It is never cached.
type ResponseMeta struct {
	LatencyMs int64       `json:"latency_ms"`
	Cache     CacheStatus `json:"cache"`
	Degraded  bool        `json:"degraded"`
	Fallbacks []string    `json:"fallbacks,omitempty"`
}

// AddFallback records a degradation marker once
func (m *ResponseMeta) AddFallback(marker string) {
	m.Degraded = true
	for _, f := range m.Fallbacks {
		if f == marker {
			return
		}
	}
	m.Fallbacks = append(m.Fallbacks, marker)
}

// SearchResult is an immutable ranked page with facets
type SearchResult struct {
	Hits       []SearchHit  `json:"hits"`
	Facets     *FacetCounts `json:"facets,omitempty"`
	Pagination Pagination   `json:"pagination"`
	Generation uint64       `json:"generation"`
	Meta       ResponseMeta `json:"meta"`
}

// IDs returns the property ids on the page in order
func (r *SearchResult) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.Property.ID
	}
	return ids
}

// WithMeta returns a shallow copy carrying the given metadata
func (r *SearchResult) WithMeta(meta ResponseMeta) *SearchResult {
	out := *r
	out.Meta = meta
	return &out
}

// EmptySearchResult returns a well-formed empty page
func EmptySearchResult(page, pageSize int) *SearchResult {
	return &SearchResult{
		Hits:       []SearchHit{},
		Facets:     &FacetCounts{},
		Pagination: NewPagination(0, page, pageSize),
	}
}
