package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

const (
	foldedAnalyzer = "folded"
	locationField  = "location"
	geoPageSize    = 1000
)

// BleveIndex is an embedded in-memory text and geo index
type BleveIndex struct {
	index bleve.Index
	mu    sync.RWMutex
}

var (
	_ providers.TextIndex = (*BleveIndex)(nil)
	_ providers.GeoIndex  = (*BleveIndex)(nil)
)

// NewBleveIndex creates an empty in-memory index
func NewBleveIndex() (*BleveIndex, error) {
	m, err := propertyMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &BleveIndex{index: idx}, nil
}

func propertyMapping() (mapping.IndexMapping, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(foldedAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = foldedAnalyzer

	doc := bleve.NewDocumentMapping()

	for _, name := range []string{providers.TextFieldName, providers.TextFieldCity} {
		field := bleve.NewTextFieldMapping()
		field.Analyzer = foldedAnalyzer
		field.Store = false
		doc.AddFieldMappingsAt(name, field)
	}

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	doc.AddFieldMappingsAt("property_type", keyword)

	doc.AddFieldMappingsAt("star_rating", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("rating_average", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("updated_at", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt(locationField, bleve.NewGeoPointFieldMapping())

	indexMapping.DefaultMapping = doc
	return indexMapping, nil
}

func bleveDocument(doc *entities.SearchDocument) map[string]interface{} {
	fields := documentFields(doc)
	if doc.Location.Valid() {
		fields[locationField] = map[string]interface{}{
			"lat": doc.Location.Latitude,
			"lon": doc.Location.Longitude,
		}
	}
	return fields
}

// Index inserts or replaces documents in one batch
func (b *BleveIndex) Index(ctx context.Context, docs []*entities.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument(doc)); err != nil {
			return fmt.Errorf("failed to batch document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

// Delete removes documents by id
func (b *BleveIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

// SearchField matches tokens against one field with length-scaled fuzziness
func (b *BleveIndex) SearchField(ctx context.Context, q providers.FieldQuery) (map[string]float64, error) {
	tokens := foldTokens(q.Tokens)
	if len(tokens) == 0 {
		return map[string]float64{}, nil
	}

	disjuncts := make([]query.Query, 0, len(tokens))
	for _, tok := range tokens {
		mq := bleve.NewMatchQuery(tok)
		mq.SetField(q.Field)
		mq.Analyzer = foldedAnalyzer
		mq.SetFuzziness(utils.FuzzinessFor(tok))
		disjuncts = append(disjuncts, mq)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = geoPageSize
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(disjuncts...), limit, 0, false)

	b.mu.RLock()
	res, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("bleve search on %s failed: %w", q.Field, err)
	}

	scores := make(map[string]float64, len(res.Hits))
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score
	}
	return scores, nil
}

// WithinBox returns ids of documents whose location lies inside the box
func (b *BleveIndex) WithinBox(ctx context.Context, box entities.BoundingBox) ([]string, error) {
	q := bleve.NewGeoBoundingBoxQuery(box.MinLon, box.MaxLat, box.MaxLon, box.MinLat)
	q.SetField(locationField)

	var ids []string
	for from := 0; ; from += geoPageSize {
		req := bleve.NewSearchRequestOptions(q, geoPageSize, from, false)

		b.mu.RLock()
		res, err := b.index.SearchInContext(ctx, req)
		b.mu.RUnlock()
		if err != nil {
			return nil, fmt.Errorf("bleve geo search failed: %w", err)
		}

		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < geoPageSize || uint64(from+len(res.Hits)) >= res.Total {
			return ids, nil
		}
	}
}

// Count returns the number of indexed documents
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the index
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
