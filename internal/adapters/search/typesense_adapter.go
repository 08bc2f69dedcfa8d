package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	tsclient "github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/typesense"
)

const typesenseMaxPerPage = 250

// TypesenseAdapter implements the text index using Typesense
type TypesenseAdapter struct {
	client *tsclient.Client
}

// Ensure TypesenseAdapter implements TextIndex
var _ providers.TextIndex = (*TypesenseAdapter)(nil)

// NewTypesenseAdapter creates a new Typesense adapter
func NewTypesenseAdapter(client *tsclient.Client) *TypesenseAdapter {
	return &TypesenseAdapter{client: client}
}

func typesenseDocument(doc *entities.SearchDocument) map[string]interface{} {
	fields := documentFields(doc)
	fields["id"] = doc.ID
	if doc.Location.Valid() {
		fields[locationField] = []float64{doc.Location.Latitude, doc.Location.Longitude}
	}
	return fields
}

// Index upserts documents
func (a *TypesenseAdapter) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	documents := a.client.Client().Collection(a.client.Collection()).Documents()
	for _, doc := range docs {
		if _, err := documents.Upsert(ctx, typesenseDocument(doc)); err != nil {
			return fmt.Errorf("failed to index property %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Delete removes documents from the collection
func (a *TypesenseAdapter) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		_, err := a.client.Client().Collection(a.client.Collection()).Document(id).Delete(ctx)
		if err != nil && !isTypesenseNotFound(err) {
			return fmt.Errorf("failed to delete property %s from index: %w", id, err)
		}
	}
	return nil
}

// SearchField queries one field. Typesense applies typo tolerance itself.
func (a *TypesenseAdapter) SearchField(ctx context.Context, q providers.FieldQuery) (map[string]float64, error) {
	tokens := foldTokens(q.Tokens)
	if len(tokens) == 0 {
		return map[string]float64{}, nil
	}

	limit := q.Limit
	if limit <= 0 || limit > typesenseMaxPerPage {
		limit = typesenseMaxPerPage
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(strings.Join(tokens, " ")),
		QueryBy: pointer.String(q.Field),
		Page:    pointer.Int(1),
		PerPage: pointer.Int(limit),
	}

	result, err := a.client.Client().Collection(a.client.Collection()).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("typesense search on %s failed: %w", q.Field, err)
	}

	scores := map[string]float64{}
	if result.Hits == nil {
		return scores, nil
	}
	// Hits arrive in text-match order; the rank is converted to a descending score.
	hits := *result.Hits
	for i, hit := range hits {
		if hit.Document == nil {
			continue
		}
		id, ok := (*hit.Document)["id"].(string)
		if !ok {
			continue
		}
		scores[id] = float64(len(hits) - i)
	}
	return scores, nil
}

func isTypesenseNotFound(err error) bool {
	return strings.Contains(err.Error(), "404") || strings.Contains(strings.ToLower(err.Error()), "not found")
}
