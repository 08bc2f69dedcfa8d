package repositories

import (
	"context"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// SearchDocumentRepository reads denormalized search documents owned by the
// property management system
type SearchDocumentRepository interface {
	// ListAfter returns up to limit documents with id greater than afterID, ordered by id
	ListAfter(ctx context.Context, afterID string, limit int) ([]*entities.SearchDocument, error)

	// GetByIDs retrieves documents by id. Missing ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]*entities.SearchDocument, error)
}
