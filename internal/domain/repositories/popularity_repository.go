package repositories

import (
	"context"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// PopularityRepository persists committed popularity snapshots
type PopularityRepository interface {
	// Save replaces the stored snapshot with the given generation
	Save(ctx context.Context, snapshot *entities.PopularitySnapshot) error

	// LoadLatest returns the most recent snapshot, or nil when none was stored
	LoadLatest(ctx context.Context) (*entities.PopularitySnapshot, error)
}
