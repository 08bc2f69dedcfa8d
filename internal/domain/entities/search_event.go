package entities

import (
	"time"
)

// SearchEventType classifies a client interaction
type SearchEventType string

const (
	SearchEventTypeSearch     SearchEventType = "search"
	SearchEventTypeImpression SearchEventType = "impression"
	SearchEventTypeClick      SearchEventType = "click"
	SearchEventTypeBooking    SearchEventType = "booking"
)

// Valid reports whether the type is known
func (t SearchEventType) Valid() bool {
	switch t {
	case SearchEventTypeSearch, SearchEventTypeImpression, SearchEventTypeClick, SearchEventTypeBooking:
		return true
	}
	return false
}

// SearchEvent represents a single search interaction for analytics. Immutable once written.
type SearchEvent struct {
	ID               string          `json:"id" db:"id"`
	Type             SearchEventType `json:"type" db:"event_type"`
	Query            string          `json:"query" db:"query"`
	Language         string          `json:"language,omitempty" db:"language"`
	FilterSignature  string          `json:"filter_signature,omitempty" db:"filter_signature"`
	Cities           []string        `json:"cities,omitempty" db:"cities"`
	Location         *GeoPoint       `json:"location,omitempty"`
	SessionID        string          `json:"session_id,omitempty" db:"session_id"`
	UserID           string          `json:"user_id,omitempty" db:"user_id"`
	ResultCount      int             `json:"result_count" db:"result_count"`
	ResponseTimeMs   int64           `json:"response_time_ms" db:"response_time_ms"`
	ShownIDs         []string        `json:"shown_ids,omitempty" db:"shown_ids"`
	ClickedIDs       []string        `json:"clicked_ids,omitempty" db:"clicked_ids"`
	BookingCompleted bool            `json:"booking_completed" db:"booking_completed"`
	ConversionValue  float64         `json:"conversion_value,omitempty" db:"conversion_value"`
	Currency         string          `json:"currency,omitempty" db:"currency"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
