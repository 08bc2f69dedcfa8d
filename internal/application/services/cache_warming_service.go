package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// CacheWarmingService pre-computes the popular destinations list and the first
// result page of each top destination so they are served from cache
type CacheWarmingService struct {
	search       *CachedSearchService
	destinations *PopularDestinationsService
	normalizer   *Normalizer
	topN         int
}

// NewCacheWarmingService creates a new cache warming service
func NewCacheWarmingService(
	search *CachedSearchService,
	destinations *PopularDestinationsService,
	normalizer *Normalizer,
	topN int,
) *CacheWarmingService {
	if topN <= 0 {
		topN = 5
	}
	return &CacheWarmingService{
		search:       search,
		destinations: destinations,
		normalizer:   normalizer,
		topN:         topN,
	}
}

// WarmCache warms the popular tier and one city search per top destination.
// It returns the number of searches warmed.
func (s *CacheWarmingService) WarmCache(ctx context.Context) (int, error) {
	list, err := s.destinations.PopularDestinations(ctx, s.topN)
	if err != nil {
		return 0, fmt.Errorf("failed to warm popular destinations: %w", err)
	}

	warmed := 0
	for _, dest := range list.Destinations {
		req, err := s.normalizer.Normalize(RawSearchParams{Cities: dest.City}, entities.RequestClassSearch)
		if err != nil {
			log.Warn().Err(err).Str("city", dest.City).Msg("skipping cache warming for destination")
			continue
		}
		if _, err := s.search.Search(ctx, req); err != nil {
			log.Warn().Err(err).Str("city", dest.City).Msg("failed to warm destination search")
			continue
		}
		warmed++
	}

	log.Debug().Int("destinations", len(list.Destinations)).Int("searches", warmed).Msg("cache warmed")
	return warmed, nil
}

// StartPeriodicWarming warms the cache now and then every interval until ctx is done
func (s *CacheWarmingService) StartPeriodicWarming(ctx context.Context, interval time.Duration) {
	if _, err := s.WarmCache(ctx); err != nil {
		log.Warn().Err(err).Msg("initial cache warming failed")
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopping cache warming service")
				return
			case <-ticker.C:
				if _, err := s.WarmCache(ctx); err != nil {
					log.Warn().Err(err).Msg("periodic cache warming failed")
				}
			}
		}
	}()
	log.Info().Dur("interval", interval).Msg("started periodic cache warming")
}
