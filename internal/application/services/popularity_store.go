package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
)

// PopularityStore exposes the latest committed popularity snapshot
type PopularityStore struct {
	current atomic.Pointer[entities.PopularitySnapshot]
	repo    repositories.PopularityRepository
}

// NewPopularityStore creates a store starting at the empty generation
func NewPopularityStore(repo repositories.PopularityRepository) *PopularityStore {
	s := &PopularityStore{repo: repo}
	s.current.Store(entities.EmptyPopularitySnapshot())
	return s
}

// Current returns the committed snapshot. It is never nil.
func (s *PopularityStore) Current() *entities.PopularitySnapshot {
	return s.current.Load()
}

// Load restores the last persisted snapshot, if any
func (s *PopularityStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snapshot, err := s.repo.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load popularity snapshot: %w", err)
	}
	if snapshot == nil {
		return nil
	}
	s.current.Store(snapshot)
	log.Info().
		Uint64("generation", snapshot.Generation).
		Int("properties", len(snapshot.Properties)).
		Int("destinations", len(snapshot.Destinations)).
		Msg("restored popularity snapshot")
	return nil
}

// Commit persists the snapshot and then makes it visible to readers.
// Nothing is swapped when persisting fails.
func (s *PopularityStore) Commit(ctx context.Context, snapshot *entities.PopularitySnapshot) error {
	if s.repo != nil {
		if err := s.repo.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to persist popularity snapshot: %w", err)
		}
	}
	s.current.Store(snapshot)
	return nil
}
