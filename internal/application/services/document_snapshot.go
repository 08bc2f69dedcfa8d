package services

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
)

// DocumentSnapshot is an immutable generation of the indexed documents
type DocumentSnapshot struct {
	Generation uint64
	BuiltAt    time.Time
	docs       map[string]*entities.SearchDocument
	ids        []string
	descLangs  map[string]struct{}
}

// NewDocumentSnapshot builds a snapshot; later duplicates of an id win
func NewDocumentSnapshot(generation uint64, docs []*entities.SearchDocument) *DocumentSnapshot {
	byID := make(map[string]*entities.SearchDocument, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		byID[doc.ID] = doc
	}
	return newSnapshot(generation, byID)
}

func newSnapshot(generation uint64, byID map[string]*entities.SearchDocument) *DocumentSnapshot {
	ids := make([]string, 0, len(byID))
	descLangs := make(map[string]struct{})
	for id, doc := range byID {
		ids = append(ids, id)
		for lang, text := range doc.Description {
			if text != "" {
				descLangs[lang] = struct{}{}
			}
		}
	}
	sort.Strings(ids)
	return &DocumentSnapshot{
		Generation: generation,
		BuiltAt:    time.Now(),
		docs:       byID,
		ids:        ids,
		descLangs:  descLangs,
	}
}

// Get returns a document by id
func (s *DocumentSnapshot) Get(id string) (*entities.SearchDocument, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// All returns every document in id order
func (s *DocumentSnapshot) All() []*entities.SearchDocument {
	out := make([]*entities.SearchDocument, len(s.ids))
	for i, id := range s.ids {
		out[i] = s.docs[id]
	}
	return out
}

// HasDescriptionLanguage reports whether any document has a description in lang
func (s *DocumentSnapshot) HasDescriptionLanguage(lang string) bool {
	_, ok := s.descLangs[lang]
	return ok
}

// Len returns the number of documents
func (s *DocumentSnapshot) Len() int {
	return len(s.ids)
}

// apply returns the next generation with upserts and deletes applied
func (s *DocumentSnapshot) apply(upserts []*entities.SearchDocument, deletes []string) *DocumentSnapshot {
	byID := make(map[string]*entities.SearchDocument, len(s.docs)+len(upserts))
	for id, doc := range s.docs {
		byID[id] = doc
	}
	for _, id := range deletes {
		delete(byID, id)
	}
	for _, doc := range upserts {
		if doc != nil && doc.ID != "" {
			byID[doc.ID] = doc
		}
	}
	return newSnapshot(s.Generation+1, byID)
}

// DocumentStore holds the current snapshot. Readers never block; writers are serialized.
type DocumentStore struct {
	current atomic.Pointer[DocumentSnapshot]
	writeMu sync.Mutex
}

// NewDocumentStore creates a store holding an empty generation
func NewDocumentStore() *DocumentStore {
	s := &DocumentStore{}
	s.current.Store(NewDocumentSnapshot(0, nil))
	return s
}

// Current returns the committed snapshot
func (s *DocumentStore) Current() *DocumentSnapshot {
	return s.current.Load()
}

// Replace swaps in a full rebuild as the next generation
func (s *DocumentStore) Replace(docs []*entities.SearchDocument) *DocumentSnapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := NewDocumentSnapshot(s.current.Load().Generation+1, docs)
	s.current.Store(next)
	return next
}

// Apply commits incremental changes as the next generation
func (s *DocumentStore) Apply(upserts []*entities.SearchDocument, deletes []string) *DocumentSnapshot {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().apply(upserts, deletes)
	s.current.Store(next)
	return next
}
