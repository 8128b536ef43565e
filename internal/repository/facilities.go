package repository

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
)

// FacilitiesRepository provides persistence helpers for facility entities.
type FacilitiesRepository struct {
	db DBTX
}

const facilityColumns = `
    id,
    name,
    description,
    address,
    city,
    country,
    latitude,
    longitude,
    opening_hours,
    wheelchair_access,
    overall_rating,
    rating_count,
    created_by,
    created_at,
    updated_at
`

var facilitySelect = []any{
	"id", "name", "description", "address", "city", "country",
	"latitude", "longitude", "opening_hours", "wheelchair_access",
	"overall_rating", "rating_count", "created_by", "created_at", "updated_at",
}

// FacilityCreateParams bundles the fields required to create a facility.
// Aggregate fields always start at zero.
type FacilityCreateParams struct {
	Name             string
	Description      string
	Address          string
	City             string
	Country          string
	Location         domain.Location
	OpeningHours     *string
	WheelchairAccess bool
	CreatedBy        *string
}

// Create inserts a new facility row and returns the stored entity.
func (r *FacilitiesRepository) Create(ctx context.Context, params FacilityCreateParams) (domain.Facility, error) {
	query := fmt.Sprintf(`
        INSERT INTO facilities (name, description, address, city, country, latitude, longitude, opening_hours, wheelchair_access, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING %s
    `, facilityColumns)

	row := r.db.QueryRow(ctx, query,
		params.Name,
		params.Description,
		params.Address,
		params.City,
		params.Country,
		params.Location.Latitude,
		params.Location.Longitude,
		params.OpeningHours,
		params.WheelchairAccess,
		params.CreatedBy,
	)
	return scanFacility(row)
}

// GetByID fetches a facility by its identifier.
func (r *FacilitiesRepository) GetByID(ctx context.Context, id string) (domain.Facility, error) {
	query := fmt.Sprintf(`SELECT %s FROM facilities WHERE id = $1`, facilityColumns)
	facility, err := scanFacility(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Facility{}, mapNoRows(err)
	}
	return facility, nil
}

// LockForUpdate takes the row lock that serializes every review mutation of
// the facility. Must run inside a transaction.
func (r *FacilitiesRepository) LockForUpdate(ctx context.Context, id string) error {
	var locked string
	err := r.db.QueryRow(ctx, `SELECT id FROM facilities WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return mapNoRows(err)
}

// SetAggregate writes the derived rating fields. It reports false when the
// facility no longer exists.
func (r *FacilitiesRepository) SetAggregate(ctx context.Context, id string, agg domain.Aggregate) (bool, error) {
	const query = `
        UPDATE facilities
        SET rating_count = $2, overall_rating = $3, updated_at = now()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, agg.Count, agg.Mean)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RebuildAggregates recomputes rating_count/overall_rating for every facility
// from the reviews table and returns the number of rows touched.
func (r *FacilitiesRepository) RebuildAggregates(ctx context.Context) (int64, error) {
	const query = `
        UPDATE facilities f
        SET rating_count = COALESCE(agg.cnt, 0),
            overall_rating = CASE WHEN COALESCE(agg.cnt, 0) = 0 THEN 0
                                  ELSE agg.total::float8 / agg.cnt END,
            updated_at = now()
        FROM facilities base
        LEFT JOIN (
            SELECT facility_id, COUNT(*) AS cnt, SUM(rating) AS total
            FROM reviews
            GROUP BY facility_id
        ) agg ON agg.facility_id = base.id
        WHERE f.id = base.id
    `
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("rebuild aggregates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindInBounds returns every facility whose point lies in the closed rectangle.
// The box containment predicate hits the GiST index; the BETWEEN predicates
// pin the boundary semantics exactly.
func (r *FacilitiesRepository) FindInBounds(ctx context.Context, b domain.Bounds) ([]domain.Facility, error) {
	query, args, err := dialect.From("facilities").Prepared(true).
		Select(facilitySelect...).
		Where(
			goqu.L("location <@ box(point(?, ?), point(?, ?))", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat),
			goqu.C("latitude").Between(goqu.Range(b.MinLat, b.MaxLat)),
			goqu.C("longitude").Between(goqu.Range(b.MinLon, b.MaxLon)),
		).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build bounds query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Facility, 0)
	for rows.Next() {
		facility, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, facility)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanFacility(row pgx.Row) (domain.Facility, error) {
	var facility domain.Facility
	err := row.Scan(
		&facility.ID,
		&facility.Name,
		&facility.Description,
		&facility.Address,
		&facility.City,
		&facility.Country,
		&facility.Location.Latitude,
		&facility.Location.Longitude,
		&facility.OpeningHours,
		&facility.WheelchairAccess,
		&facility.OverallRating,
		&facility.RatingCount,
		&facility.CreatedBy,
		&facility.CreatedAt,
		&facility.UpdatedAt,
	)
	if err != nil {
		return domain.Facility{}, err
	}
	return facility, nil
}
