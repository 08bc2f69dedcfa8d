package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
)

// GeoMatches maps document ids inside the radius to their distance in km
type GeoMatches struct {
	Distances map[string]float64
	Fallback  string
}

// GeoFilter resolves location filters with a bounding box pre-check and a
// haversine precise check
type GeoFilter struct {
	index       providers.GeoIndex
	maxRadiusKm float64
	timeout     time.Duration
}

// NewGeoFilter creates a new geo filter
func NewGeoFilter(index providers.GeoIndex, maxRadiusKm float64, timeout time.Duration) *GeoFilter {
	return &GeoFilter{index: index, maxRadiusKm: maxRadiusKm, timeout: timeout}
}

// Filter returns nil when loc is nil
func (g *GeoFilter) Filter(ctx context.Context, loc *entities.LocationFilter, snapshot *DocumentSnapshot) *GeoMatches {
	if loc == nil {
		return nil
	}

	radius := loc.RadiusKm
	if g.maxRadiusKm > 0 && radius > g.maxRadiusKm {
		radius = g.maxRadiusKm
	}
	box := entities.BoundingBoxAround(loc.Center, radius)

	matches := &GeoMatches{Distances: make(map[string]float64)}

	ids, err := g.withinBox(ctx, box)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("geo index unavailable, scanning snapshot")
		ids = scanBox(box, snapshot)
		matches.Fallback = entities.FallbackGeoScan
	}

	for _, id := range ids {
		doc, ok := snapshot.Get(id)
		if !ok || !doc.Location.Valid() {
			continue
		}
		if d := entities.DistanceKm(loc.Center, *doc.Location); d <= radius {
			matches.Distances[id] = d
		}
	}
	return matches
}

// withinBox queries the index once per side of the antimeridian
func (g *GeoFilter) withinBox(ctx context.Context, box entities.BoundingBox) ([]string, error) {
	if g.index == nil {
		return nil, fmt.Errorf("no geo index configured")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var ids []string
	for _, part := range box.Split() {
		found, err := g.index.WithinBox(ctx, part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

func scanBox(box entities.BoundingBox, snapshot *DocumentSnapshot) []string {
	var ids []string
	for _, doc := range snapshot.All() {
		if doc.Location.Valid() && box.Contains(*doc.Location) {
			ids = append(ids, doc.ID)
		}
	}
	return ids
}
