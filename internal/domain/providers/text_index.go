package providers

import (
	"context"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// Indexed text fields. Localized descriptions use DescriptionField(lang).
const (
	TextFieldName = "name"
	TextFieldCity = "city"
)

// DescriptionField returns the indexed field holding the description in lang
func DescriptionField(lang string) string {
	return "description_" + lang
}

// FieldQuery is a token match against a single indexed field
type FieldQuery struct {
	Field  string
	Tokens []string
	Limit  int
}

// TextIndex is a full-text index over search documents
type TextIndex interface {
	// Index inserts or replaces documents
	Index(ctx context.Context, docs []*entities.SearchDocument) error

	// Delete removes documents by id
	Delete(ctx context.Context, ids []string) error

	// SearchField returns raw relevance scores keyed by document id for one field.
	// Tokens are matched with fuzziness scaled to their length.
	SearchField(ctx context.Context, q FieldQuery) (map[string]float64, error)
}

// GeoIndex is a spatial index over document locations
type GeoIndex interface {
	// Index inserts or replaces the locations of documents. Documents without a
	// valid location are removed from the index.
	Index(ctx context.Context, docs []*entities.SearchDocument) error

	// Delete removes documents by id
	Delete(ctx context.Context, ids []string) error

	// WithinBox returns the ids of documents inside the bounding box. Callers
	// split boxes that cross the antimeridian first.
	WithinBox(ctx context.Context, box entities.BoundingBox) ([]string, error)
}
