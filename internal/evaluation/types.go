package evaluation

import "time"

// QueryKind groups golden queries by the search path they exercise.
type QueryKind string

const (
	KindDestination  QueryKind = "destination"   // "hà nội", "da nang beach"
	KindPropertyName QueryKind = "property_name" // "grand hotel hanoi"
	KindNearby       QueryKind = "nearby"        // lat/lon with a radius
	KindFiltered     QueryKind = "filtered"      // text plus structured filters
)

// ValidKinds returns all valid kind values.
func ValidKinds() []QueryKind {
	return []QueryKind{KindDestination, KindPropertyName, KindNearby, KindFiltered}
}

// IsValid reports whether k is one of the defined kinds.
func (k QueryKind) IsValid() bool {
	switch k {
	case KindDestination, KindPropertyName, KindNearby, KindFiltered:
		return true
	}
	return false
}

// GoldenQuery is a labeled query with the property ids a good ranking returns.
type GoldenQuery struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	Kind        QueryKind `json:"kind"`
	Language    string    `json:"language,omitempty"`
	Cities      []string  `json:"cities,omitempty"`
	Stars       []int     `json:"stars,omitempty"`
	MaxPrice    string    `json:"max_price,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	RadiusKm    float64   `json:"radius_km,omitempty"`
	ExpectedIDs []string  `json:"expected_ids"`
	Difficulty  string    `json:"difficulty"` // easy, medium, hard
}

// EvalResult holds the outcome for a single query.
type EvalResult struct {
	QueryID     string        `json:"query_id"`
	Query       string        `json:"query"`
	Kind        QueryKind     `json:"kind"`
	RecallAt10  float64       `json:"recall_at_10"`
	MRRAt10     float64       `json:"mrr_at_10"`
	NDCGAt10    float64       `json:"ndcg_at_10"`
	ResultCount int           `json:"result_count"`
	Retrieved   []string      `json:"retrieved"`
	Latency     time.Duration `json:"latency_ns"`
	Err         string        `json:"error,omitempty"`
}

// EvalSummary holds aggregate metrics across all golden queries.
type EvalSummary struct {
	TotalQueries    int                     `json:"total_queries"`
	FailedQueries   int                     `json:"failed_queries"`
	AvgRecallAt10   float64                 `json:"avg_recall_at_10"`
	AvgMRRAt10      float64                 `json:"avg_mrr_at_10"`
	AvgNDCGAt10     float64                 `json:"avg_ndcg_at_10"`
	AvgLatency      time.Duration           `json:"avg_latency_ns"`
	QueriesWithHits int                     `json:"queries_with_hits"`
	ZeroResultRate  float64                 `json:"zero_result_rate"`
	ByKind          map[QueryKind]*KindStat `json:"by_kind"`
	Results         []EvalResult            `json:"results,omitempty"`
}

// KindStat holds metrics grouped by query kind.
type KindStat struct {
	Count         int     `json:"count"`
	AvgRecallAt10 float64 `json:"avg_recall_at_10"`
	AvgMRRAt10    float64 `json:"avg_mrr_at_10"`
	AvgNDCGAt10   float64 `json:"avg_ndcg_at_10"`
}
