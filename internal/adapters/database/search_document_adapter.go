package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

// searchDocumentsView is the denormalized view maintained by property management
const searchDocumentsView = "search_documents"

var searchDocumentColumns = []interface{}{
	"id", "name", "description", "property_type", "star_rating",
	"city", "country_code", "latitude", "longitude",
	"rating_average", "rating_count", "amenities", "room_types", "images",
	"popularity_score", "conversion_rate", "review_score", "promoted",
	"boost_updated_at", "updated_at",
}

// SearchDocumentAdapter implements the SearchDocumentRepository interface
type SearchDocumentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewSearchDocumentAdapter creates a new search document adapter
func NewSearchDocumentAdapter(client *postgres.Client) repositories.SearchDocumentRepository {
	return &SearchDocumentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListAfter pages through documents in id order
func (a *SearchDocumentAdapter) ListAfter(ctx context.Context, afterID string, limit int) ([]*entities.SearchDocument, error) {
	if limit <= 0 {
		limit = 500
	}

	ds := a.db.Select(searchDocumentColumns...).From(searchDocumentsView)
	if afterID != "" {
		ds = ds.Where(goqu.C("id").Gt(afterID))
	}
	ds = ds.Order(goqu.I("id").Asc()).Limit(uint(limit))

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}
	return a.query(ctx, query, args)
}

// GetByIDs retrieves documents by id
func (a *SearchDocumentAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.SearchDocument, error) {
	if len(ids) == 0 {
		return []*entities.SearchDocument{}, nil
	}

	query, args, err := a.db.Select(searchDocumentColumns...).
		From(searchDocumentsView).
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build get query", err)
	}
	return a.query(ctx, query, args)
}

func (a *SearchDocumentAdapter) query(ctx context.Context, query string, args []interface{}) ([]*entities.SearchDocument, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query search documents", err)
	}
	defer rows.Close()

	docs := []*entities.SearchDocument{}
	for rows.Next() {
		doc, err := scanSearchDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate search documents", err)
	}
	return docs, nil
}

func scanSearchDocument(rows *sql.Rows) (*entities.SearchDocument, error) {
	doc := &entities.SearchDocument{}
	var (
		name, description, amenities, roomTypes, images []byte
		propertyType, countryCode                       sql.NullString
		latitude, longitude                             sql.NullFloat64
		boostUpdatedAt                                  sql.NullTime
	)

	err := rows.Scan(
		&doc.ID,
		&name,
		&description,
		&propertyType,
		&doc.StarRating,
		&doc.City,
		&countryCode,
		&latitude,
		&longitude,
		&doc.RatingAverage,
		&doc.RatingCount,
		&amenities,
		&roomTypes,
		&images,
		&doc.Boost.PopularityScore,
		&doc.Boost.ConversionRate,
		&doc.Boost.ReviewScore,
		&doc.Boost.Promoted,
		&boostUpdatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan search document", err)
	}

	doc.PropertyType = propertyType.String
	doc.CountryCode = countryCode.String
	if latitude.Valid && longitude.Valid {
		doc.Location = &entities.GeoPoint{Latitude: latitude.Float64, Longitude: longitude.Float64}
	}
	if boostUpdatedAt.Valid {
		doc.Boost.UpdatedAt = boostUpdatedAt.Time
	}

	for _, col := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"name", name, &doc.Name},
		{"description", description, &doc.Description},
		{"amenities", amenities, &doc.Amenities},
		{"room_types", roomTypes, &doc.RoomTypes},
		{"images", images, &doc.Images},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, apperrors.NewInternalError(fmt.Sprintf("failed to decode %s of %s", col.name, doc.ID), err)
		}
	}

	return doc, nil
}
