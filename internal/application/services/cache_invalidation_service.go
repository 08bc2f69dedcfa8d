package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// rankedTiers hold results whose membership or order can change with a property
var rankedTiers = []string{TierSearch, TierFacets, TierLocation, TierSuggestions}

// CacheInvalidationService invalidates cached results when properties change
type CacheInvalidationService struct {
	layer *CacheLayer
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(layer *CacheLayer) *CacheInvalidationService {
	return &CacheInvalidationService{layer: layer}
}

// HandleEvent removes entries that contain the property and, when the change can
// affect matching or ordering, retires the ranked tiers by bumping their version
func (s *CacheInvalidationService) HandleEvent(ctx context.Context, event *entities.PropertyEvent) error {
	removed, err := s.layer.InvalidateProperty(ctx, event.PropertyID)
	if err != nil {
		return fmt.Errorf("failed to invalidate property %s: %w", event.PropertyID, err)
	}

	bumped := false
	if event.RankingRelevant() {
		if err := s.layer.BumpVersion(ctx, rankedTiers...); err != nil {
			return fmt.Errorf("failed to bump cache version: %w", err)
		}
		bumped = true
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("property_id", event.PropertyID).
		Str("event_type", string(event.EventType)).
		Int("entries_removed", removed).
		Bool("version_bumped", bumped).
		Msg("invalidated search caches")
	return nil
}

// InvalidateSearchCaches retires every tier. Used after full rebuilds.
func (s *CacheInvalidationService) InvalidateSearchCaches(ctx context.Context) error {
	if err := s.layer.BumpVersion(ctx, append(rankedTiers, TierPopular)...); err != nil {
		return fmt.Errorf("failed to invalidate search caches: %w", err)
	}
	log.Info().Msg("invalidated all search cache tiers")
	return nil
}
