package entities

import (
	"time"

	"github.com/google/uuid"
)

// PropertyEventType represents the type of property event
type PropertyEventType string

const (
	PropertyEventTypeChanged PropertyEventType = "property_changed"
	PropertyEventTypeDeleted PropertyEventType = "property_deleted"
)

// rankingFields are the fields whose change can reorder or filter results
var rankingFields = map[string]struct{}{
	"name":           {},
	"description":    {},
	"property_type":  {},
	"star_rating":    {},
	"city":           {},
	"country_code":   {},
	"location":       {},
	"rating_average": {},
	"rating_count":   {},
	"amenities":      {},
	"room_types":     {},
	"boost":          {},
	"promoted":       {},
}

// PropertyEvent is emitted by property management when a property changes
type PropertyEvent struct {
	ID            string            `json:"id"`
	PropertyID    string            `json:"property_id"`
	EventType     PropertyEventType `json:"event_type"`
	ChangedFields []string          `json:"changed_fields,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// NewPropertyEvent creates a new property event
func NewPropertyEvent(propertyID string, eventType PropertyEventType, changedFields ...string) *PropertyEvent {
	return &PropertyEvent{
		ID:            uuid.New().String(),
		PropertyID:    propertyID,
		EventType:     eventType,
		ChangedFields: changedFields,
		Timestamp:     time.Now(),
	}
}

// RankingRelevant reports whether the event can change which properties match a
// query or their order. Events without field details are treated as relevant.
func (e *PropertyEvent) RankingRelevant() bool {
	if e.EventType == PropertyEventTypeDeleted || len(e.ChangedFields) == 0 {
		return true
	}
	for _, field := range e.ChangedFields {
		if _, ok := rankingFields[field]; ok {
			return true
		}
	}
	return false
}
