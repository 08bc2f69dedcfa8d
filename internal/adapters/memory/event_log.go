package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
)

// EventLog is an append-only in-memory search event log bounded to the most
// recent maxEvents entries
type EventLog struct {
	mu        sync.RWMutex
	events    []*entities.SearchEvent
	maxEvents int
}

var _ repositories.SearchEventRepository = (*EventLog)(nil)

// NewEventLog creates an event log. maxEvents <= 0 keeps 100000 events.
func NewEventLog(maxEvents int) *EventLog {
	if maxEvents <= 0 {
		maxEvents = 100000
	}
	return &EventLog{maxEvents: maxEvents}
}

func (l *EventLog) Append(ctx context.Context, events []*entities.SearchEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range events {
		stored := *e
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now().UTC()
		}
		l.events = append(l.events, &stored)
	}
	if overflow := len(l.events) - l.maxEvents; overflow > 0 {
		l.events = append([]*entities.SearchEvent(nil), l.events[overflow:]...)
	}
	return nil
}

func (l *EventLog) ListSince(ctx context.Context, since time.Time, limit int) ([]*entities.SearchEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10000
	}

	l.mu.RLock()
	matched := make([]*entities.SearchEvent, 0)
	for _, e := range l.events {
		if !e.CreatedAt.Before(since) {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Len returns the number of stored events
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
