package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
)

func newMockClient(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.NewFromDB(db), mock
}

var documentColumns = []string{
	"id", "name", "description", "property_type", "star_rating",
	"city", "country_code", "latitude", "longitude",
	"rating_average", "rating_count", "amenities", "room_types", "images",
	"popularity_score", "conversion_rate", "review_score", "promoted",
	"boost_updated_at", "updated_at",
}

func TestSearchDocumentAdapter_ListAfter(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewSearchDocumentAdapter(client)
	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM "search_documents" WHERE \("id" > 'p1'\) ORDER BY "id" ASC LIMIT 2`).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("p2", []byte(`{"en":"Lotus Hotel","vi":"Khách sạn Sen"}`), []byte(`{"en":"Near the lake"}`),
				"hotel", 4, "Hà Nội", "VN", 21.03, 105.85,
				4.5, 120, []byte(`[{"id":"wifi","name":"Wi-Fi"}]`),
				[]byte(`[{"name":"Deluxe","max_occupancy":2,"available_count":3,"base_price":1200000,"currency":"VND"}]`),
				[]byte(`["a.jpg"]`), 0.8, 0.1, 0.9, true, nil, updated).
			AddRow("p3", []byte(`{"en":"Hostel"}`), nil,
				nil, 2, "Da Nang", nil, nil, nil,
				3.9, 10, nil, nil, nil, 0.0, 0.0, 0.0, false, nil, updated))

	docs, err := adapter.ListAfter(context.Background(), "p1", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Khách sạn Sen", docs[0].Name["vi"])
	assert.Equal(t, "Hà Nội", docs[0].City)
	require.NotNil(t, docs[0].Location)
	assert.InDelta(t, 21.03, docs[0].Location.Latitude, 1e-9)
	assert.True(t, docs[0].HasAmenity("wifi"))
	assert.True(t, docs[0].Boost.Promoted)
	assert.Len(t, docs[0].RoomTypes, 1)

	assert.Nil(t, docs[1].Location)
	assert.Empty(t, docs[1].PropertyType)
	assert.Empty(t, docs[1].Amenities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDocumentAdapter_GetByIDs(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewSearchDocumentAdapter(client)

	docs, err := adapter.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)

	mock.ExpectQuery(`FROM "search_documents" WHERE \("id" IN \('a', 'b'\)\)`).
		WillReturnRows(sqlmock.NewRows(documentColumns))

	docs, err = adapter.GetByIDs(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDocumentAdapter_BadJSON(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewSearchDocumentAdapter(client)

	mock.ExpectQuery(`FROM "search_documents"`).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("p1", []byte(`{not json`), nil, nil, 3, "Hue", nil, nil, nil,
				0.0, 0, nil, nil, nil, 0.0, 0.0, 0.0, false, nil, time.Now()))

	_, err := adapter.ListAfter(context.Background(), "", 10)
	assert.Error(t, err)
}

func TestSearchEventAdapter_Append(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewSearchEventAdapter(client)

	events := []*entities.SearchEvent{
		{Type: entities.SearchEventTypeSearch, Query: "hanoi", SessionID: "s1", ShownIDs: []string{"p1", "p2"}},
		{Type: entities.SearchEventTypeClick, SessionID: "s1", ClickedIDs: []string{"p1"}, Location: &entities.GeoPoint{Latitude: 10, Longitude: 106}},
	}

	mock.ExpectExec(`INSERT INTO "search_events"`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, adapter.Append(context.Background(), events))
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, adapter.Append(context.Background(), nil))
}

func TestSearchEventAdapter_ListSince(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewSearchEventAdapter(client)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM "search_events" WHERE \("created_at" >= .*\) ORDER BY "created_at" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "query", "language", "filter_signature", "cities",
			"latitude", "longitude", "session_id", "user_id", "result_count",
			"response_time_ms", "shown_ids", "clicked_ids", "booking_completed",
			"conversion_value", "currency", "created_at",
		}).AddRow("e1", "click", "hanoi", "vi", "", []byte(`["Hà Nội"]`),
			21.0, 105.8, "s1", "", 3, int64(12), []byte(`["p1"]`), []byte(`["p1"]`), false,
			0.0, "", now))

	events, err := adapter.ListSince(context.Background(), now.Add(-time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entities.SearchEventTypeClick, events[0].Type)
	assert.Equal(t, []string{"Hà Nội"}, events[0].Cities)
	assert.Equal(t, []string{"p1"}, events[0].ClickedIDs)
	require.NotNil(t, events[0].Location)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularityAdapter_SaveReplacesSnapshot(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewPopularityAdapter(client)

	snapshot := entities.EmptyPopularitySnapshot()
	snapshot.Generation = 4
	snapshot.ComputedAt = time.Now()
	snapshot.Properties["p1"] = &entities.PopularityRecord{Kind: entities.PopularityKindProperty, Key: "p1", TrendingScore: 0.7}
	snapshot.Destinations["hà nội"] = &entities.PopularityRecord{Kind: entities.PopularityKindDestination, Key: "hà nội", TrendingScore: 0.9}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "popularity_snapshots"`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(`INSERT INTO "popularity_snapshots"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, adapter.Save(context.Background(), snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularityAdapter_SaveRollsBackOnError(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewPopularityAdapter(client)

	snapshot := entities.EmptyPopularitySnapshot()
	snapshot.Properties["p1"] = &entities.PopularityRecord{Kind: entities.PopularityKindProperty, Key: "p1"}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "popularity_snapshots"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "popularity_snapshots"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	assert.Error(t, adapter.Save(context.Background(), snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopularityAdapter_LoadLatest(t *testing.T) {
	client, mock := newMockClient(t)
	adapter := NewPopularityAdapter(client)
	now := time.Now().UTC()
	cols := []string{
		"generation", "computed_at", "kind", "key", "window_start", "window_end",
		"search_volume", "impressions", "clicks", "bookings", "unique_sessions",
		"click_through_rate", "conversion_rate", "trending_score",
	}

	mock.ExpectQuery(`FROM "popularity_snapshots"`).WillReturnRows(sqlmock.NewRows(cols))
	snapshot, err := adapter.LoadLatest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	mock.ExpectQuery(`FROM "popularity_snapshots" ORDER BY "generation" DESC`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), now, "destination", "hà nội", now.Add(-5*time.Minute), now, int64(40), int64(0), int64(0), int64(0), int64(12), 0.0, 0.0, 0.9).
			AddRow(int64(7), now, "property", "p1", now.Add(-5*time.Minute), now, int64(10), int64(100), int64(20), int64(2), int64(8), 0.2, 0.1, 0.5).
			AddRow(int64(6), now, "property", "p9", now.Add(-10*time.Minute), now, int64(1), int64(1), int64(1), int64(1), int64(1), 1.0, 1.0, 1.0))

	snapshot, err = adapter.LoadLatest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, uint64(7), snapshot.Generation)
	assert.Contains(t, snapshot.Destinations, "hà nội")
	assert.Contains(t, snapshot.Properties, "p1")
	assert.NotContains(t, snapshot.Properties, "p9")
	assert.NoError(t, mock.ExpectationsWereMet())
}
