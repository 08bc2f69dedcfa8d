package search

import (
	"context"
	"fmt"
	"math"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/redis"
)

const kmPerDegree = 111.32

// RedisGeoIndex keeps property locations in a Redis geo set
type RedisGeoIndex struct {
	client *redisclient.Client
	key    string
}

var _ providers.GeoIndex = (*RedisGeoIndex)(nil)

// NewRedisGeoIndex creates a geo index stored under key
func NewRedisGeoIndex(client *redisclient.Client, key string) *RedisGeoIndex {
	if key == "" {
		key = "search:geo:properties"
	}
	return &RedisGeoIndex{client: client, key: key}
}

// Index adds valid locations and removes documents without one
func (g *RedisGeoIndex) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	var locations []*redis.GeoLocation
	var invalid []interface{}
	for _, doc := range docs {
		if !doc.Location.Valid() {
			invalid = append(invalid, doc.ID)
			continue
		}
		locations = append(locations, &redis.GeoLocation{
			Name:      doc.ID,
			Latitude:  doc.Location.Latitude,
			Longitude: doc.Location.Longitude,
		})
	}

	pipe := g.client.Client().Pipeline()
	if len(locations) > 0 {
		pipe.GeoAdd(ctx, g.key, locations...)
	}
	if len(invalid) > 0 {
		pipe.ZRem(ctx, g.key, invalid...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index locations: %w", err)
	}
	return nil
}

// Delete removes documents from the geo set
func (g *RedisGeoIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := g.client.Client().ZRem(ctx, g.key, members...).Err(); err != nil {
		return fmt.Errorf("failed to remove locations: %w", err)
	}
	return nil
}

// WithinBox runs GEOSEARCH BYBOX centered on the box
func (g *RedisGeoIndex) WithinBox(ctx context.Context, box entities.BoundingBox) ([]string, error) {
	centerLat := (box.MinLat + box.MaxLat) / 2
	centerLon := (box.MinLon + box.MaxLon) / 2
	height := (box.MaxLat - box.MinLat) * kmPerDegree
	width := (box.MaxLon - box.MinLon) * kmPerDegree * cosDeg(centerLat)

	ids, err := g.client.Client().GeoSearch(ctx, g.key, &redis.GeoSearchQuery{
		Longitude: centerLon,
		Latitude:  centerLat,
		BoxWidth:  width,
		BoxHeight: height,
		BoxUnit:   "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search failed: %w", err)
	}
	return ids, nil
}

func cosDeg(deg float64) float64 {
	return math.Cos(deg * math.Pi / 180)
}
