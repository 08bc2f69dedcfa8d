package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zatekoja/propertysearch/backend/internal/application/services"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

const (
	maxEventBodyBytes = 64 << 10
	maxEventIDs       = 200
)

// EventPublisher publishes property events to the indexing pipeline
type EventPublisher interface {
	Publish(ctx context.Context, channel string, event *entities.PropertyEvent) error
}

// EventHandler accepts analytics events and property change notifications
type EventHandler struct {
	recorder  EventRecorder
	publisher EventPublisher
}

// NewEventHandler creates a new event handler
func NewEventHandler(recorder EventRecorder, publisher EventPublisher) *EventHandler {
	return &EventHandler{recorder: recorder, publisher: publisher}
}

type searchEventRequest struct {
	Type             string             `json:"type"`
	Query            string             `json:"query"`
	Language         string             `json:"language"`
	FilterSignature  string             `json:"filter_signature"`
	Cities           []string           `json:"cities"`
	Location         *entities.GeoPoint `json:"location"`
	ResultCount      int                `json:"result_count"`
	ResponseTimeMs   int64              `json:"response_time_ms"`
	ShownIDs         []string           `json:"shown_ids"`
	ClickedIDs       []string           `json:"clicked_ids"`
	BookingCompleted bool               `json:"booking_completed"`
	ConversionValue  float64            `json:"conversion_value"`
	Currency         string             `json:"currency"`
}

// RecordSearchEvent handles POST /api/v1/events
func (h *EventHandler) RecordSearchEvent(w http.ResponseWriter, r *http.Request) {
	var payload searchEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&payload); err != nil {
		RespondWithError(w, r, apperrors.NewValidationError("body", "invalid request payload"))
		return
	}

	eventType := entities.SearchEventType(strings.ToLower(strings.TrimSpace(payload.Type)))
	if !eventType.Valid() {
		RespondWithError(w, r, apperrors.NewValidationError("type", "type must be one of search, impression, click, booking"))
		return
	}
	if len(payload.ShownIDs) > maxEventIDs || len(payload.ClickedIDs) > maxEventIDs {
		RespondWithError(w, r, apperrors.NewValidationError("shown_ids", "too many property ids"))
		return
	}
	if payload.Location != nil && !payload.Location.Valid() {
		payload.Location = nil
	}

	id := entities.IdentityFromContext(r.Context())
	event := &entities.SearchEvent{
		Type:             eventType,
		Query:            payload.Query,
		Language:         services.NormalizeLanguage(payload.Language),
		FilterSignature:  payload.FilterSignature,
		Cities:           payload.Cities,
		Location:         payload.Location,
		SessionID:        id.SessionID,
		UserID:           id.UserID,
		ResultCount:      payload.ResultCount,
		ResponseTimeMs:   payload.ResponseTimeMs,
		ShownIDs:         payload.ShownIDs,
		ClickedIDs:       payload.ClickedIDs,
		BookingCompleted: payload.BookingCompleted,
		ConversionValue:  payload.ConversionValue,
		Currency:         strings.ToUpper(payload.Currency),
	}

	accepted, err := h.recorder.Record(r.Context(), event)
	if errors.Is(err, services.ErrAnalyticsStopped) {
		RespondWithError(w, r, apperrors.NewUpstreamUnavailableError("analytics", err))
		return
	}
	if err != nil {
		RespondWithError(w, r, err)
		return
	}

	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": status,
		"id":     event.ID,
	})
}

// PropertyEvent handles POST /api/v1/internal/property-events
func (h *EventHandler) PropertyEvent(w http.ResponseWriter, r *http.Request) {
	var event entities.PropertyEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&event); err != nil {
		RespondWithError(w, r, apperrors.NewValidationError("body", "invalid request payload"))
		return
	}

	event.PropertyID = strings.TrimSpace(event.PropertyID)
	if event.PropertyID == "" {
		RespondWithError(w, r, apperrors.NewValidationError("property_id", "property_id is required"))
		return
	}
	switch event.EventType {
	case entities.PropertyEventTypeChanged, entities.PropertyEventTypeDeleted:
	default:
		RespondWithError(w, r, apperrors.NewValidationError("event_type", "event_type must be property_changed or property_deleted"))
		return
	}
	if event.ID == "" {
		event.ID = entities.NewPropertyEvent(event.PropertyID, event.EventType).ID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := h.publisher.Publish(r.Context(), providers.EventChannelPropertyUpdates, &event); err != nil {
		RespondWithError(w, r, apperrors.NewUpstreamUnavailableError("event bus", err))
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"id":     event.ID,
	})
}
