package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
)

// DocumentRepository serves search documents held in memory, typically
// loaded from a JSON seed file
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*entities.SearchDocument
	ids  []string
}

var _ repositories.SearchDocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a repository holding docs
func NewDocumentRepository(docs []*entities.SearchDocument) *DocumentRepository {
	r := &DocumentRepository{}
	r.Replace(docs)
	return r
}

// LoadDocumentFile reads a JSON array of search documents
func LoadDocumentFile(path string) (*DocumentRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var docs []*entities.SearchDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return NewDocumentRepository(docs), nil
}

// Replace swaps the full document set
func (r *DocumentRepository) Replace(docs []*entities.SearchDocument) {
	byID := make(map[string]*entities.SearchDocument, len(docs))
	for _, doc := range docs {
		if doc == nil || strings.TrimSpace(doc.ID) == "" {
			continue
		}
		byID[doc.ID] = doc
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.mu.Lock()
	r.docs = byID
	r.ids = ids
	r.mu.Unlock()
}

// Put inserts or replaces one document
func (r *DocumentRepository) Put(doc *entities.SearchDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; !ok {
		i := sort.SearchStrings(r.ids, doc.ID)
		r.ids = append(r.ids, "")
		copy(r.ids[i+1:], r.ids[i:])
		r.ids[i] = doc.ID
	}
	r.docs[doc.ID] = doc
}

// Remove deletes one document
func (r *DocumentRepository) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return
	}
	delete(r.docs, id)
	i := sort.SearchStrings(r.ids, id)
	r.ids = append(r.ids[:i], r.ids[i+1:]...)
}

func (r *DocumentRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]*entities.SearchDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := sort.Search(len(r.ids), func(i int) bool { return r.ids[i] > afterID })
	end := min(start+limit, len(r.ids))
	page := make([]*entities.SearchDocument, 0, end-start)
	for _, id := range r.ids[start:end] {
		page = append(page, r.docs[id])
	}
	return page, nil
}

func (r *DocumentRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.SearchDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*entities.SearchDocument, 0, len(ids))
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
