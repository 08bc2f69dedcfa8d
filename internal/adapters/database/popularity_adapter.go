package database

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/propertysearch/backend/internal/domain/entities"
	"github.com/zatekoja/propertysearch/backend/internal/domain/repositories"
	"github.com/zatekoja/propertysearch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/propertysearch/backend/pkg/errors"
)

const popularitySnapshotsTable = "popularity_snapshots"

// PopularityAdapter stores the latest popularity snapshot
type PopularityAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPopularityAdapter creates a new popularity adapter
func NewPopularityAdapter(client *postgres.Client) repositories.PopularityRepository {
	return &PopularityAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Save replaces the stored records with the snapshot in one transaction
func (a *PopularityAdapter) Save(ctx context.Context, snapshot *entities.PopularitySnapshot) error {
	deleteQuery, _, err := a.db.Delete(popularitySnapshotsTable).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	records := snapshot.Records()
	rows := make([]interface{}, 0, len(records))
	for _, r := range records {
		rows = append(rows, goqu.Record{
			"generation":         snapshot.Generation,
			"computed_at":        snapshot.ComputedAt,
			"kind":               string(r.Kind),
			"key":                r.Key,
			"window_start":       r.WindowStart,
			"window_end":         r.WindowEnd,
			"search_volume":      r.SearchVolume,
			"impressions":        r.Impressions,
			"clicks":             r.Clicks,
			"bookings":           r.Bookings,
			"unique_sessions":    r.UniqueSessions,
			"click_through_rate": r.ClickThrough,
			"conversion_rate":    r.Conversion,
			"trending_score":     r.TrendingScore,
		})
	}

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteQuery); err != nil {
		return apperrors.NewInternalError("failed to clear popularity snapshot", err)
	}

	if len(rows) > 0 {
		insertQuery, args, err := a.db.Insert(popularitySnapshotsTable).Rows(rows...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
		if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
			return apperrors.NewInternalError("failed to store popularity snapshot", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit popularity snapshot", err)
	}
	return nil
}

// LoadLatest returns the stored snapshot, or nil when nothing was saved yet
func (a *PopularityAdapter) LoadLatest(ctx context.Context) (*entities.PopularitySnapshot, error) {
	query, args, err := a.db.Select(
		"generation", "computed_at", "kind", "key", "window_start", "window_end",
		"search_volume", "impressions", "clicks", "bookings", "unique_sessions",
		"click_through_rate", "conversion_rate", "trending_score",
	).From(popularitySnapshotsTable).
		Order(goqu.I("generation").Desc(), goqu.I("trending_score").Desc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build load query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load popularity snapshot", err)
	}
	defer rows.Close()

	var snapshot *entities.PopularitySnapshot
	for rows.Next() {
		var (
			generation int64
			computedAt time.Time
			kind       string
		)
		r := &entities.PopularityRecord{}
		err := rows.Scan(
			&generation,
			&computedAt,
			&kind,
			&r.Key,
			&r.WindowStart,
			&r.WindowEnd,
			&r.SearchVolume,
			&r.Impressions,
			&r.Clicks,
			&r.Bookings,
			&r.UniqueSessions,
			&r.ClickThrough,
			&r.Conversion,
			&r.TrendingScore,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan popularity record", err)
		}
		r.Kind = entities.PopularityKind(kind)

		if snapshot == nil {
			snapshot = entities.EmptyPopularitySnapshot()
			snapshot.Generation = uint64(generation)
			snapshot.ComputedAt = computedAt
			snapshot.WindowStart = r.WindowStart
			snapshot.WindowEnd = r.WindowEnd
		}
		// only the newest generation is kept
		if uint64(generation) != snapshot.Generation {
			continue
		}

		switch r.Kind {
		case entities.PopularityKindProperty:
			snapshot.Properties[r.Key] = r
		case entities.PopularityKindDestination:
			snapshot.Destinations[r.Key] = r
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate popularity records", err)
	}

	return snapshot, nil
}
