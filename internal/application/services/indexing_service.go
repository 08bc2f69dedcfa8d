package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
)

const defaultIndexPageSize = 500

// IndexingService keeps the document snapshot and the text and geo indexes in
// sync with the property source
type IndexingService struct {
	source      repositories.SearchDocumentRepository
	docs        *DocumentStore
	text        providers.TextIndex
	geo         providers.GeoIndex
	bus         providers.EventBus
	invalidator *CacheInvalidationService
	loader      *dataloader.Loader[string, *entities.SearchDocument]
	pageSize    int

	rebuildMu sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewIndexingService creates a new indexing service. geo may be the same object as text.
func NewIndexingService(
	source repositories.SearchDocumentRepository,
	docs *DocumentStore,
	text providers.TextIndex,
	geo providers.GeoIndex,
	bus providers.EventBus,
	invalidator *CacheInvalidationService,
) *IndexingService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &IndexingService{
		source:      source,
		docs:        docs,
		text:        text,
		geo:         geo,
		bus:         bus,
		invalidator: invalidator,
		pageSize:    defaultIndexPageSize,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.loader = dataloader.NewBatchedLoader(s.loadDocuments,
		dataloader.WithWait[string, *entities.SearchDocument](5*time.Millisecond),
		dataloader.WithCache[string, *entities.SearchDocument](&dataloader.NoCache[string, *entities.SearchDocument]{}),
	)
	return s
}

// loadDocuments batches document reads. Missing ids resolve to nil, meaning deleted.
func (s *IndexingService) loadDocuments(ctx context.Context, ids []string) []*dataloader.Result[*entities.SearchDocument] {
	results := make([]*dataloader.Result[*entities.SearchDocument], len(ids))

	docs, err := s.source.GetByIDs(ctx, ids)
	if err != nil {
		for i := range ids {
			results[i] = &dataloader.Result[*entities.SearchDocument]{Error: err}
		}
		return results
	}

	byID := make(map[string]*entities.SearchDocument, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}
	for i, id := range ids {
		results[i] = &dataloader.Result[*entities.SearchDocument]{Data: byID[id]}
	}
	return results
}

func (s *IndexingService) sameIndex() bool {
	return s.geo == nil || any(s.geo) == any(s.text)
}

func (s *IndexingService) indexDocuments(ctx context.Context, docs []*entities.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if s.text != nil {
		if err := s.text.Index(ctx, docs); err != nil {
			return fmt.Errorf("failed to index text: %w", err)
		}
	}
	if !s.sameIndex() {
		if err := s.geo.Index(ctx, docs); err != nil {
			return fmt.Errorf("failed to index locations: %w", err)
		}
	}
	return nil
}

func (s *IndexingService) deleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.text != nil {
		if err := s.text.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete from text index: %w", err)
		}
	}
	if !s.sameIndex() {
		if err := s.geo.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete from geo index: %w", err)
		}
	}
	return nil
}

// Rebuild pages through the source, indexes every document, removes documents
// that disappeared and swaps in the new snapshot
func (s *IndexingService) Rebuild(ctx context.Context) (*DocumentSnapshot, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	start := time.Now()
	var (
		all   []*entities.SearchDocument
		after string
	)
	for {
		page, err := s.source.ListAfter(ctx, after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents after %q: %w", after, err)
		}
		if len(page) == 0 {
			break
		}
		if err := s.indexDocuments(ctx, page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		after = page[len(page)-1].ID
		if len(page) < s.pageSize {
			break
		}
	}

	seen := make(map[string]struct{}, len(all))
	for _, doc := range all {
		seen[doc.ID] = struct{}{}
	}
	var gone []string
	for _, doc := range s.docs.Current().All() {
		if _, ok := seen[doc.ID]; !ok {
			gone = append(gone, doc.ID)
		}
	}
	if err := s.deleteDocuments(ctx, gone); err != nil {
		return nil, err
	}

	previous := s.docs.Current().Generation
	snapshot := s.docs.Replace(all)
	if previous > 0 && s.invalidator != nil {
		if err := s.invalidator.InvalidateSearchCaches(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate caches after rebuild")
		}
	}
	log.Info().
		Uint64("generation", snapshot.Generation).
		Int("documents", snapshot.Len()).
		Int("removed", len(gone)).
		Dur("took", time.Since(start)).
		Msg("search index rebuilt")
	return snapshot, nil
}

// Start subscribes to property events
func (s *IndexingService) Start() error {
	if s.bus == nil {
		return nil
	}
	events, err := s.bus.Subscribe(s.ctx, providers.EventChannelPropertyUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to property updates: %w", err)
	}

	s.wg.Add(1)
	go s.processEvents(events)
	log.Info().Msg("indexing service started")
	return nil
}

// StartPeriodicRebuild rebuilds the index every interval until Stop is called
func (s *IndexingService) StartPeriodicRebuild(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Rebuild(s.ctx); err != nil {
					log.Error().Err(err).Msg("periodic index rebuild failed")
				}
			}
		}
	}()
	log.Info().Dur("interval", interval).Msg("started periodic index rebuild")
}

// Stop stops event processing and periodic rebuilds
func (s *IndexingService) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("indexing service stopped")
}

func (s *IndexingService) processEvents(events <-chan *entities.PropertyEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			// each event is handled on its own goroutine so the loader can batch
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.HandleEvent(ctx, event); err != nil {
					log.Error().Err(err).
						Str("event_id", event.ID).
						Str("property_id", event.PropertyID).
						Msg("failed to apply property event")
				}
			}()
		}
	}
}

// HandleEvent reindexes or removes the property, then invalidates cached results
func (s *IndexingService) HandleEvent(ctx context.Context, event *entities.PropertyEvent) error {
	var (
		upserts []*entities.SearchDocument
		deletes []string
	)

	switch event.EventType {
	case entities.PropertyEventTypeDeleted:
		deletes = []string{event.PropertyID}
	default:
		doc, err := s.loader.Load(ctx, event.PropertyID)()
		if err != nil {
			return fmt.Errorf("failed to load property %s: %w", event.PropertyID, err)
		}
		if doc == nil {
			deletes = []string{event.PropertyID}
		} else {
			upserts = []*entities.SearchDocument{doc}
		}
	}

	s.rebuildMu.Lock()
	err := s.indexDocuments(ctx, upserts)
	if err == nil {
		err = s.deleteDocuments(ctx, deletes)
	}
	if err == nil {
		s.docs.Apply(upserts, deletes)
	}
	s.rebuildMu.Unlock()
	if err != nil {
		return err
	}

	if s.invalidator != nil {
		if err := s.invalidator.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
