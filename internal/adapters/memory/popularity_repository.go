package memory

import (
	"context"
	"sync"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
)

// PopularityRepository keeps the latest committed popularity snapshot in memory
type PopularityRepository struct {
	mu       sync.RWMutex
	snapshot *entities.PopularitySnapshot
}

var _ repositories.PopularityRepository = (*PopularityRepository)(nil)

func NewPopularityRepository() *PopularityRepository {
	return &PopularityRepository{}
}

func (r *PopularityRepository) Save(ctx context.Context, snapshot *entities.PopularitySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil && snapshot.Generation < r.snapshot.Generation {
		return nil
	}
	r.snapshot = snapshot
	return nil
}

func (r *PopularityRepository) LoadLatest(ctx context.Context) (*entities.PopularitySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot, nil
}
