package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

const searchEventsTable = "search_events"

var searchEventColumns = []interface{}{
	"id", "event_type", "query", "language", "filter_signature", "cities",
	"latitude", "longitude", "session_id", "user_id", "result_count",
	"response_time_ms", "shown_ids", "clicked_ids", "booking_completed",
	"conversion_value", "currency", "created_at",
}

// SearchEventAdapter implements the append-only SearchEventRepository
type SearchEventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSearchEventAdapter creates a new search event adapter
func NewSearchEventAdapter(client *postgres.Client) repositories.SearchEventRepository {
	return &SearchEventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// Append inserts a batch of events in a single statement
func (a *SearchEventAdapter) Append(ctx context.Context, events []*entities.SearchEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(events))
	for _, event := range events {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now()
		}

		record := goqu.Record{
			"id":                event.ID,
			"event_type":        string(event.Type),
			"query":             event.Query,
			"language":          event.Language,
			"filter_signature":  event.FilterSignature,
			"cities":            jsonList(event.Cities),
			"latitude":          nil,
			"longitude":         nil,
			"session_id":        event.SessionID,
			"user_id":           event.UserID,
			"result_count":      event.ResultCount,
			"response_time_ms":  event.ResponseTimeMs,
			"shown_ids":         jsonList(event.ShownIDs),
			"clicked_ids":       jsonList(event.ClickedIDs),
			"booking_completed": event.BookingCompleted,
			"conversion_value":  event.ConversionValue,
			"currency":          event.Currency,
			"created_at":        event.CreatedAt,
		}
		if event.Location.Valid() {
			record["latitude"] = event.Location.Latitude
			record["longitude"] = event.Location.Longitude
		}
		rows = append(rows, record)
	}

	query, args, err := a.db.Insert(searchEventsTable).Rows(rows...).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to append search events", err)
	}
	return nil
}

// ListSince returns events created at or after since, oldest first
func (a *SearchEventAdapter) ListSince(ctx context.Context, since time.Time, limit int) ([]*entities.SearchEvent, error) {
	if limit <= 0 {
		limit = 10000
	}

	query, args, err := a.db.Select(searchEventColumns...).
		From(searchEventsTable).
		Where(goqu.C("created_at").Gte(since)).
		Order(goqu.I("created_at").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list search events", err)
	}
	defer rows.Close()

	events := []*entities.SearchEvent{}
	for rows.Next() {
		e := &entities.SearchEvent{}
		var (
			eventType                    string
			cities, shownIDs, clickedIDs []byte
			latitude, longitude          *float64
		)
		err := rows.Scan(
			&e.ID,
			&eventType,
			&e.Query,
			&e.Language,
			&e.FilterSignature,
			&cities,
			&latitude,
			&longitude,
			&e.SessionID,
			&e.UserID,
			&e.ResultCount,
			&e.ResponseTimeMs,
			&shownIDs,
			&clickedIDs,
			&e.BookingCompleted,
			&e.ConversionValue,
			&e.Currency,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan search event", err)
		}

		e.Type = entities.SearchEventType(eventType)
		if latitude != nil && longitude != nil {
			e.Location = &entities.GeoPoint{Latitude: *latitude, Longitude: *longitude}
		}
		_ = json.Unmarshal(cities, &e.Cities)
		_ = json.Unmarshal(shownIDs, &e.ShownIDs)
		_ = json.Unmarshal(clickedIDs, &e.ClickedIDs)

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate search events", err)
	}

	return events, nil
}
