package entities

import (
	"sort"
	"time"
)

// PopularityKind distinguishes property and destination aggregates
type PopularityKind string

const (
	PopularityKindProperty    PopularityKind = "property"
	PopularityKindDestination PopularityKind = "destination"
)

// PopularityRecord aggregates interactions for one key over one window
type PopularityRecord struct {
	Kind           PopularityKind `json:"kind" db:"kind"`
	Key            string         `json:"key" db:"key"`
	WindowStart    time.Time      `json:"window_start" db:"window_start"`
	WindowEnd      time.Time      `json:"window_end" db:"window_end"`
	SearchVolume   int64          `json:"search_volume" db:"search_volume"`
	Impressions    int64          `json:"impressions" db:"impressions"`
	Clicks         int64          `json:"clicks" db:"clicks"`
	Bookings       int64          `json:"bookings" db:"bookings"`
	UniqueSessions int64          `json:"unique_sessions" db:"unique_sessions"`
	ClickThrough   float64        `json:"click_through_rate" db:"click_through_rate"`
	Conversion     float64        `json:"conversion_rate" db:"conversion_rate"`
	TrendingScore  float64        `json:"trending_score" db:"trending_score"`
}

// PopularitySnapshot is an immutable, versioned set of popularity records.
// A newer generation supersedes an older one as a whole.
type PopularitySnapshot struct {
	Generation   uint64                       `json:"generation"`
	WindowStart  time.Time                    `json:"window_start"`
	WindowEnd    time.Time                    `json:"window_end"`
	ComputedAt   time.Time                    `json:"computed_at"`
	Properties   map[string]*PopularityRecord `json:"properties"`
	Destinations map[string]*PopularityRecord `json:"destinations"`
}

// EmptyPopularitySnapshot returns generation zero with no records
func EmptyPopularitySnapshot() *PopularitySnapshot {
	return &PopularitySnapshot{
		Properties:   map[string]*PopularityRecord{},
		Destinations: map[string]*PopularityRecord{},
	}
}

// PropertyScore returns the trending score for a property
func (s *PopularitySnapshot) PropertyScore(id string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	rec, ok := s.Properties[id]
	if !ok {
		return 0, false
	}
	return rec.TrendingScore, true
}

// DestinationScore returns the trending score for a folded city name
func (s *PopularitySnapshot) DestinationScore(city string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	rec, ok := s.Destinations[city]
	if !ok {
		return 0, false
	}
	return rec.TrendingScore, true
}

// TopDestinations returns up to limit destinations ordered by trending score desc, key asc
func (s *PopularitySnapshot) TopDestinations(limit int) []*PopularityRecord {
	if s == nil {
		return []*PopularityRecord{}
	}
	records := make([]*PopularityRecord, 0, len(s.Destinations))
	for _, rec := range s.Destinations {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TrendingScore != records[j].TrendingScore {
			return records[i].TrendingScore > records[j].TrendingScore
		}
		return records[i].Key < records[j].Key
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// Records returns all records, properties first, each group ordered by key
func (s *PopularitySnapshot) Records() []*PopularityRecord {
	out := make([]*PopularityRecord, 0, len(s.Properties)+len(s.Destinations))
	for _, group := range []map[string]*PopularityRecord{s.Properties, s.Destinations} {
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, group[k])
		}
	}
	return out
}
