package repository

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
)

// ReviewsRepository provides helpers for facility reviews.
type ReviewsRepository struct {
	db DBTX
}

const reviewColumns = `
    id,
    facility_id,
    author_id,
    rating,
    title,
    body,
    likes,
    created_at,
    updated_at
`

var reviewSelect = []any{
	"id", "facility_id", "author_id", "rating", "title", "body", "likes", "created_at", "updated_at",
}

// ReviewInsertParams captures the payload required to create a review.
type ReviewInsertParams struct {
	FacilityID string
	AuthorID   string
	Rating     int
	Title      *string
	Body       *string
}

// ReviewPatch holds a partial update; nil fields are left unchanged.
type ReviewPatch struct {
	Rating *int
	Title  *string
	Body   *string
}

// Insert creates a review row.
func (r *ReviewsRepository) Insert(ctx context.Context, params ReviewInsertParams) (domain.Review, error) {
	query := fmt.Sprintf(`
        INSERT INTO reviews (facility_id, author_id, rating, title, body)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, reviewColumns)

	row := r.db.QueryRow(ctx, query, params.FacilityID, params.AuthorID, params.Rating, params.Title, params.Body)
	return scanReview(row)
}

// Overwrite replaces rating, title and body of an existing review.
func (r *ReviewsRepository) Overwrite(ctx context.Context, id string, rating int, title, body *string) (domain.Review, error) {
	query := fmt.Sprintf(`
        UPDATE reviews
        SET rating = $2, title = $3, body = $4, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, reviewColumns)

	review, err := scanReview(r.db.QueryRow(ctx, query, id, rating, title, body))
	if err != nil {
		return domain.Review{}, mapNoRows(err)
	}
	return review, nil
}

// Patch applies the supplied fields of a partial update.
func (r *ReviewsRepository) Patch(ctx context.Context, id string, patch ReviewPatch) (domain.Review, error) {
	query := fmt.Sprintf(`
        UPDATE reviews
        SET rating = COALESCE($2, rating),
            title = COALESCE($3, title),
            body = COALESCE($4, body),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, reviewColumns)

	review, err := scanReview(r.db.QueryRow(ctx, query, id, patch.Rating, patch.Title, patch.Body))
	if err != nil {
		return domain.Review{}, mapNoRows(err)
	}
	return review, nil
}

// Delete removes a review. Deleting a missing row returns ErrNotFound.
func (r *ReviewsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a review by id.
func (r *ReviewsRepository) Get(ctx context.Context, id string) (domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1`, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Review{}, mapNoRows(err)
	}
	return review, nil
}

// GetForUpdate retrieves and row-locks a review. Must run inside a transaction.
func (r *ReviewsRepository) GetForUpdate(ctx context.Context, id string) (domain.Review, error) {
	query := fmt.Sprintf(`SELECT %s FROM reviews WHERE id = $1 FOR UPDATE`, reviewColumns)
	review, err := scanReview(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Review{}, mapNoRows(err)
	}
	return review, nil
}

// ListForPair returns every review a given author holds for a facility,
// newest modification first, with the rows locked.
func (r *ReviewsRepository) ListForPair(ctx context.Context, facilityID, authorID string) ([]domain.Review, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM reviews
        WHERE facility_id = $1 AND author_id = $2
        ORDER BY updated_at DESC, created_at DESC, id DESC
        FOR UPDATE
    `, reviewColumns)
	return r.collect(ctx, query, facilityID, authorID)
}

// ListByFacility returns a facility's reviews, most recent first.
func (r *ReviewsRepository) ListByFacility(ctx context.Context, facilityID string) ([]domain.Review, error) {
	return r.listWhere(ctx, goqu.Ex{"facility_id": facilityID})
}

// ListByAuthor returns an author's reviews, most recent first.
func (r *ReviewsRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Review, error) {
	return r.listWhere(ctx, goqu.Ex{"author_id": authorID})
}

// FacilitiesForAuthor returns the distinct facilities an author has
// reviewed, in ascending id order.
func (r *ReviewsRepository) FacilitiesForAuthor(ctx context.Context, authorID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
        SELECT facility_id::text FROM reviews
        WHERE author_id = $1
        GROUP BY facility_id
        ORDER BY facility_id
    `, authorID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect author facilities: %w", err)
	}
	return ids, nil
}

// DeleteForPair removes every review an author holds for a facility and
// reports how many rows were deleted.
func (r *ReviewsRepository) DeleteForPair(ctx context.Context, facilityID, authorID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE facility_id = $1 AND author_id = $2`, facilityID, authorID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Totals returns the number of reviews for a facility and the sum of their ratings.
func (r *ReviewsRepository) Totals(ctx context.Context, facilityID string) (count, sum int64, err error) {
	const query = `
        SELECT COUNT(*)::int8, COALESCE(SUM(rating), 0)::int8
        FROM reviews
        WHERE facility_id = $1
    `
	if err := r.db.QueryRow(ctx, query, facilityID).Scan(&count, &sum); err != nil {
		return 0, 0, fmt.Errorf("review totals: %w", err)
	}
	return count, sum, nil
}

func (r *ReviewsRepository) listWhere(ctx context.Context, where goqu.Ex) ([]domain.Review, error) {
	query, args, err := dialect.From("reviews").Prepared(true).
		Select(reviewSelect...).
		Where(where).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build review list query: %w", err)
	}
	return r.collect(ctx, query, args...)
}

func (r *ReviewsRepository) collect(ctx context.Context, query string, args ...any) ([]domain.Review, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanReview(row pgx.Row) (domain.Review, error) {
	var (
		review domain.Review
		rating int16
	)
	err := row.Scan(
		&review.ID,
		&review.FacilityID,
		&review.AuthorID,
		&rating,
		&review.Title,
		&review.Body,
		&review.Likes,
		&review.CreatedAt,
		&review.UpdatedAt,
	)
	if err != nil {
		return domain.Review{}, err
	}
	review.Rating = int(rating)
	return review, nil
}
