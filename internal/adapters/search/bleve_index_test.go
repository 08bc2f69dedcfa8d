package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/providers"
)

func testDocs() []*entities.SearchDocument {
	return []*entities.SearchDocument{
		{
			ID:          "p1",
			Name:        map[string]string{"en": "Hanoi Grand Hotel", "vi": "Khách sạn Hà Nội Grand"},
			Description: map[string]string{"en": "Hotel near Hoan Kiem lake"},
			City:        "Hà Nội",
			Location:    &entities.GeoPoint{Latitude: 21.0285, Longitude: 105.8542},
		},
		{
			ID:       "p2",
			Name:     map[string]string{"en": "Saigon Riverside Apartments"},
			City:     "Ho Chi Minh City",
			Location: &entities.GeoPoint{Latitude: 10.7769, Longitude: 106.7009},
		},
		{
			ID:   "p3",
			Name: map[string]string{"en": "Nowhere Hostel"},
			City: "Hà Nội",
		},
	}
}

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Index(context.Background(), testDocs()))
	return idx
}

func TestBleveIndex_SearchFieldFoldsAndFuzzes(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	scores, err := idx.SearchField(ctx, providers.FieldQuery{Field: providers.TextFieldCity, Tokens: []string{"Hà", "Nội"}})
	require.NoError(t, err)
	assert.Contains(t, scores, "p1")
	assert.Contains(t, scores, "p3")
	assert.NotContains(t, scores, "p2")

	scores, err = idx.SearchField(ctx, providers.FieldQuery{Field: providers.TextFieldName, Tokens: []string{"hotell"}})
	require.NoError(t, err)
	assert.Contains(t, scores, "p1")
}

func TestBleveIndex_SearchFieldEmptyTokens(t *testing.T) {
	idx := newTestIndex(t)

	scores, err := idx.SearchField(context.Background(), providers.FieldQuery{Field: providers.TextFieldName})
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestBleveIndex_DescriptionField(t *testing.T) {
	idx := newTestIndex(t)

	scores, err := idx.SearchField(context.Background(), providers.FieldQuery{
		Field:  providers.DescriptionField("en"),
		Tokens: []string{"lake"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, keys(scores))
}

func TestBleveIndex_WithinBox(t *testing.T) {
	idx := newTestIndex(t)
	box := entities.BoundingBoxAround(entities.GeoPoint{Latitude: 21.03, Longitude: 105.85}, 10)

	ids, err := idx.WithinBox(context.Background(), box)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Delete(ctx, []string{"p1"}))
	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	ids, err := idx.WithinBox(ctx, entities.BoundingBoxAround(entities.GeoPoint{Latitude: 21.03, Longitude: 105.85}, 10))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDocumentFields_FoldsText(t *testing.T) {
	fields := documentFields(testDocs()[0])

	assert.Equal(t, "ha noi", fields[providers.TextFieldCity])
	assert.Contains(t, fields[providers.TextFieldName], "khach san ha noi grand")
	assert.Equal(t, "hotel near hoan kiem lake", fields[providers.DescriptionField("en")])
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
