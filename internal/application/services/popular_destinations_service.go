package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// Destination is one entry of the popular destinations list
type Destination struct {
	City           string  `json:"city"`
	Key            string  `json:"key"`
	TrendingScore  float64 `json:"trending_score"`
	SearchVolume   int64   `json:"search_volume"`
	UniqueSessions int64   `json:"unique_sessions"`
	PropertyCount  int     `json:"property_count"`
}

// DestinationList is a popular destinations response
type DestinationList struct {
	Destinations []Destination         `json:"destinations"`
	Generation   uint64                `json:"generation"`
	Meta         entities.ResponseMeta `json:"meta"`
}

// PopularDestinationsService ranks destinations by the committed trending score
type PopularDestinationsService struct {
	docs       *DocumentStore
	popularity *PopularityStore
	layer      *CacheLayer
	defaultLen int
	maxLen     int
}

// NewPopularDestinationsService creates a new popular destinations service
func NewPopularDestinationsService(docs *DocumentStore, popularity *PopularityStore, layer *CacheLayer) *PopularDestinationsService {
	return &PopularDestinationsService{
		docs:       docs,
		popularity: popularity,
		layer:      layer,
		defaultLen: 10,
		maxLen:     50,
	}
}

// PopularDestinations returns up to limit destinations of the committed snapshot
func (s *PopularDestinationsService) PopularDestinations(ctx context.Context, limit int) (*DestinationList, error) {
	start := time.Now()
	if limit <= 0 {
		limit = s.defaultLen
	}
	if limit > s.maxLen {
		limit = s.maxLen
	}

	snapshot := s.popularity.Current()
	hash := sha256.Sum256([]byte(fmt.Sprintf("v1|popular|limit=%d", limit)))

	list, meta, err := fetchCached(ctx, s.layer, cacheRequest[*DestinationList]{
		tier:       TierPopular,
		hash:       hex.EncodeToString(hash[:]),
		generation: snapshot.Generation,
		compute: func(ctx context.Context) (*DestinationList, []string, error) {
			return s.compute(snapshot, limit), nil, nil
		},
		empty: func() *DestinationList {
			return &DestinationList{Destinations: []Destination{}}
		},
	})
	if err != nil {
		return nil, err
	}

	out := *list
	out.Meta = meta
	out.Meta.LatencyMs = time.Since(start).Milliseconds()
	return &out, nil
}

func (s *PopularDestinationsService) compute(snapshot *entities.PopularitySnapshot, limit int) *DestinationList {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, doc := range s.docs.Current().All() {
		key := utils.CompactKey(doc.City)
		if key == "" {
			continue
		}
		counts[key]++
		if _, ok := names[key]; !ok {
			names[key] = doc.City
		}
	}

	records := snapshot.TopDestinations(limit)
	out := &DestinationList{
		Destinations: make([]Destination, 0, len(records)),
		Generation:   snapshot.Generation,
	}
	for _, rec := range records {
		name := names[rec.Key]
		if name == "" {
			name = rec.Key
		}
		out.Destinations = append(out.Destinations, Destination{
			City:           name,
			Key:            rec.Key,
			TrendingScore:  rec.TrendingScore,
			SearchVolume:   rec.SearchVolume,
			UniqueSessions: rec.UniqueSessions,
			PropertyCount:  counts[rec.Key],
		})
	}
	return out
}
