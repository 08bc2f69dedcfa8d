package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// SearchEventRepository is the append-only search event log
type SearchEventRepository interface {
	// Append writes a batch of events
	Append(ctx context.Context, events []*entities.SearchEvent) error

	// ListSince returns events created at or after since, oldest first
	ListSince(ctx context.Context, since time.Time, limit int) ([]*entities.SearchEvent, error)
}
