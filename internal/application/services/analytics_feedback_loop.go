package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/propertysearch/backend/pkg/config"
	"github.com/zatekoja/propertysearch/backend/pkg/utils"
)

// ErrAnalyticsStopped is returned by Record after Stop
var ErrAnalyticsStopped = errors.New("analytics loop stopped")

// minTrendingScore drops records that decayed to noise
const minTrendingScore = 0.001

type keyCounters struct {
	volume      int64
	impressions int64
	clicks      int64
	bookings    int64
	sessions    int64
}

// analyticsWindow accumulates one aggregation window
type analyticsWindow struct {
	start        time.Time
	properties   map[string]*keyCounters
	destinations map[string]*keyCounters
	sessions     *bloom.BloomFilter
}

func newAnalyticsWindow(start time.Time, cfg config.AnalyticsConfig) *analyticsWindow {
	expected, fp := cfg.ExpectedSessions, cfg.BloomFalsePositive
	if expected == 0 {
		expected = 10000
	}
	if fp <= 0 || fp >= 1 {
		fp = 0.01
	}
	return &analyticsWindow{
		start:        start,
		properties:   make(map[string]*keyCounters),
		destinations: make(map[string]*keyCounters),
		sessions:     bloom.NewWithEstimates(expected, fp),
	}
}

func counterFor(m map[string]*keyCounters, key string) *keyCounters {
	c, ok := m[key]
	if !ok {
		c = &keyCounters{}
		m[key] = c
	}
	return c
}

// touchSession counts the session once per key and window
func (w *analyticsWindow) touchSession(kind entities.PopularityKind, key, sessionID string, c *keyCounters) {
	if sessionID == "" {
		return
	}
	if !w.sessions.TestAndAddString(string(kind) + "|" + key + "|" + sessionID) {
		c.sessions++
	}
}

func (w *analyticsWindow) fold(e *entities.SearchEvent) {
	for _, city := range e.Cities {
		key := utils.CompactKey(city)
		if key == "" {
			continue
		}
		c := counterFor(w.destinations, key)
		switch e.Type {
		case entities.SearchEventTypeSearch:
			c.volume++
		case entities.SearchEventTypeImpression:
			c.impressions += int64(len(e.ShownIDs))
		case entities.SearchEventTypeClick:
			c.clicks += int64(len(e.ClickedIDs))
		case entities.SearchEventTypeBooking:
			if e.BookingCompleted {
				c.bookings++
			}
		}
		w.touchSession(entities.PopularityKindDestination, key, e.SessionID, c)
	}

	switch e.Type {
	case entities.SearchEventTypeSearch:
		for _, id := range e.ShownIDs {
			c := counterFor(w.properties, id)
			c.volume++
			c.impressions++
			w.touchSession(entities.PopularityKindProperty, id, e.SessionID, c)
		}
	case entities.SearchEventTypeImpression:
		for _, id := range e.ShownIDs {
			c := counterFor(w.properties, id)
			c.impressions++
			w.touchSession(entities.PopularityKindProperty, id, e.SessionID, c)
		}
	case entities.SearchEventTypeClick:
		for _, id := range e.ClickedIDs {
			c := counterFor(w.properties, id)
			c.clicks++
			w.touchSession(entities.PopularityKindProperty, id, e.SessionID, c)
		}
	case entities.SearchEventTypeBooking:
		if !e.BookingCompleted {
			return
		}
		for _, id := range e.ClickedIDs {
			c := counterFor(w.properties, id)
			c.bookings++
			w.touchSession(entities.PopularityKindProperty, id, e.SessionID, c)
		}
	}
}

// absorb folds an older window that failed to commit into w, so its activity
// lands in the next generation. A session seen on both sides of the failed
// close is counted once per side.
func (w *analyticsWindow) absorb(older *analyticsWindow) {
	for key, c := range older.properties {
		counterFor(w.properties, key).add(c)
	}
	for key, c := range older.destinations {
		counterFor(w.destinations, key).add(c)
	}
	if err := w.sessions.Merge(older.sessions); err != nil {
		log.Warn().Err(err).Msg("failed to merge session filters")
	}
	if older.start.Before(w.start) {
		w.start = older.start
	}
}

func (c *keyCounters) add(o *keyCounters) {
	c.volume += o.volume
	c.impressions += o.impressions
	c.clicks += o.clicks
	c.bookings += o.bookings
	c.sessions += o.sessions
}

// AnalyticsFeedbackLoop ingests search events without blocking callers and
// periodically commits a new popularity snapshot
type AnalyticsFeedbackLoop struct {
	cfg      config.AnalyticsConfig
	eventLog repositories.SearchEventRepository
	store    *PopularityStore
	metrics  *observability.Metrics
	now      func() time.Time

	queue chan *entities.SearchEvent

	mu     sync.Mutex
	window *analyticsWindow
	// closeMu serializes window closes so generations stay consecutive
	closeMu sync.Mutex

	stopMu  sync.RWMutex
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewAnalyticsFeedbackLoop creates a new analytics loop. Call Start to run it.
func NewAnalyticsFeedbackLoop(
	cfg config.AnalyticsConfig,
	eventLog repositories.SearchEventRepository,
	store *PopularityStore,
	metrics *observability.Metrics,
) *AnalyticsFeedbackLoop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	l := &AnalyticsFeedbackLoop{
		cfg:      cfg,
		eventLog: eventLog,
		store:    store,
		metrics:  metrics,
		now:      time.Now,
		queue:    make(chan *entities.SearchEvent, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	l.window = newAnalyticsWindow(l.now(), cfg)
	return l
}

// Record enqueues an event. It never blocks; when the queue is full the event is
// dropped and false is returned.
func (l *AnalyticsFeedbackLoop) Record(ctx context.Context, event *entities.SearchEvent) (bool, error) {
	l.stopMu.RLock()
	defer l.stopMu.RUnlock()
	if l.stopped {
		return false, ErrAnalyticsStopped
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now()
	}

	select {
	case l.queue <- event:
		return true, nil
	default:
		observability.RecordEventDropped(ctx, l.metrics, string(event.Type))
		log.Warn().Str("event_type", string(event.Type)).Msg("analytics queue full, dropping event")
		return false, nil
	}
}

// Start launches the batching worker and the window ticker
func (l *AnalyticsFeedbackLoop) Start() {
	l.wg.Add(2)
	go l.consume()
	go l.tick()
	log.Info().
		Dur("window", l.cfg.Window).
		Int("queue_size", l.cfg.QueueSize).
		Msg("analytics feedback loop started")
}

// Stop stops accepting events, drains the queue and flushes the last batch
func (l *AnalyticsFeedbackLoop) Stop(ctx context.Context) error {
	l.stopMu.Lock()
	if l.stopped {
		l.stopMu.Unlock()
		return nil
	}
	l.stopped = true
	close(l.queue)
	close(l.done)
	l.stopMu.Unlock()

	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Info().Msg("analytics feedback loop stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *AnalyticsFeedbackLoop) consume() {
	defer l.wg.Done()

	interval := l.cfg.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]*entities.SearchEvent, 0, l.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.Ingest(context.Background(), batch)
		batch = make([]*entities.SearchEvent, 0, l.cfg.BatchSize)
	}

	for {
		select {
		case event, ok := <-l.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, event)
			if len(batch) >= l.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *AnalyticsFeedbackLoop) tick() {
	defer l.wg.Done()
	if l.cfg.Window <= 0 {
		return
	}

	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := l.CloseWindow(ctx); err != nil {
				log.Error().Err(err).Msg("failed to commit popularity snapshot")
			}
			cancel()
		}
	}
}

// Ingest appends a batch to the event log and folds it into the open window
func (l *AnalyticsFeedbackLoop) Ingest(ctx context.Context, batch []*entities.SearchEvent) {
	if l.eventLog != nil {
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := l.eventLog.Append(writeCtx, batch); err != nil {
			log.Warn().Err(err).Int("events", len(batch)).Msg("failed to append search events")
		}
		cancel()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range batch {
		l.window.fold(event)
	}
}

// CloseWindow turns the open window into the next popularity generation, commits
// it and opens a new window. When the commit fails the closed window is folded
// back into the open one and retried on the next close.
func (l *AnalyticsFeedbackLoop) CloseWindow(ctx context.Context) (*entities.PopularitySnapshot, error) {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()

	now := l.now()

	l.mu.Lock()
	window := l.window
	l.window = newAnalyticsWindow(now, l.cfg)
	l.mu.Unlock()

	previous := l.store.Current()
	next := entities.EmptyPopularitySnapshot()
	next.Generation = previous.Generation + 1
	next.WindowStart = window.start
	next.WindowEnd = now
	next.ComputedAt = now

	next.Properties = l.buildRecords(entities.PopularityKindProperty, window.properties, previous.Properties, window.start, now)
	next.Destinations = l.buildRecords(entities.PopularityKindDestination, window.destinations, previous.Destinations, window.start, now)

	if err := l.store.Commit(ctx, next); err != nil {
		l.mu.Lock()
		l.window.absorb(window)
		l.mu.Unlock()
		return nil, err
	}

	log.Info().
		Uint64("generation", next.Generation).
		Int("properties", len(next.Properties)).
		Int("destinations", len(next.Destinations)).
		Msg("committed popularity snapshot")
	return next, nil
}

func (l *AnalyticsFeedbackLoop) buildRecords(
	kind entities.PopularityKind,
	counters map[string]*keyCounters,
	previous map[string]*entities.PopularityRecord,
	start, end time.Time,
) map[string]*entities.PopularityRecord {
	maxVolume := int64(0)
	for _, c := range counters {
		if c.volume > maxVolume {
			maxVolume = c.volume
		}
	}

	alpha := clamp(l.cfg.SmoothingAlpha, 0, 1)
	out := make(map[string]*entities.PopularityRecord, len(counters))

	for key, c := range counters {
		rec := &entities.PopularityRecord{
			Kind:           kind,
			Key:            key,
			WindowStart:    start,
			WindowEnd:      end,
			SearchVolume:   c.volume,
			Impressions:    c.impressions,
			Clicks:         c.clicks,
			Bookings:       c.bookings,
			UniqueSessions: c.sessions,
			ClickThrough:   ratio(c.clicks, c.impressions),
			Conversion:     ratio(c.bookings, c.clicks),
		}
		volumeNorm := 0.0
		if maxVolume > 0 {
			volumeNorm = float64(c.volume) / float64(maxVolume)
		}
		score := l.cfg.VolumeWeight*volumeNorm + l.cfg.CTRWeight*rec.ClickThrough + l.cfg.ConversionWeight*rec.Conversion
		if prev, ok := previous[key]; ok {
			score = alpha*score + (1-alpha)*prev.TrendingScore
		}
		rec.TrendingScore = clamp(score, 0, 1)
		out[key] = rec
	}

	// keys without activity decay toward zero
	for key, prev := range previous {
		if _, ok := out[key]; ok {
			continue
		}
		score := (1 - alpha) * prev.TrendingScore
		if score < minTrendingScore {
			continue
		}
		out[key] = &entities.PopularityRecord{
			Kind:          kind,
			Key:           key,
			WindowStart:   start,
			WindowEnd:     end,
			TrendingScore: score,
		}
	}
	return out
}

func ratio(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return clamp(float64(num)/float64(den), 0, 1)
}
