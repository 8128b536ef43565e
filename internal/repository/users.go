package repository

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
)

// UsersRepository persists user profiles keyed by identity id.
type UsersRepository struct {
	db DBTX
}

const userColumns = `
    id,
    public_id::text,
    username,
    email,
    first_name,
    last_name,
    created_at,
    updated_at
`

// UserUpsertParams is the full profile written by a sync.
type UserUpsertParams struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// UserPatch holds a partial profile update; nil fields are left unchanged.
type UserPatch struct {
	Username  *string
	Email     *string
	FirstName *string
	LastName  *string
}

// Upsert creates the profile or overwrites an existing one. The flag reports
// whether a row was inserted.
func (r *UsersRepository) Upsert(ctx context.Context, params UserUpsertParams) (domain.User, bool, error) {
	query := fmt.Sprintf(`
        INSERT INTO users (id, username, email, first_name, last_name)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
        SET username = EXCLUDED.username,
            email = EXCLUDED.email,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            updated_at = now()
        RETURNING %s, (xmax = 0) AS inserted
    `, userColumns)

	var (
		user     domain.User
		inserted bool
	)
	err := r.db.QueryRow(ctx, query,
		params.ID,
		params.Username,
		params.Email,
		params.FirstName,
		params.LastName,
	).Scan(
		&user.ID,
		&user.PublicID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
		&user.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, inserted, nil
}

// GetByID fetches a profile.
func (r *UsersRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return domain.User{}, mapNoRows(err)
	}
	return user, nil
}

// Patch applies a partial update.
func (r *UsersRepository) Patch(ctx context.Context, id string, patch UserPatch) (domain.User, error) {
	query := fmt.Sprintf(`
        UPDATE users
        SET username = COALESCE($2, username),
            email = COALESCE($3, email),
            first_name = COALESCE($4, first_name),
            last_name = COALESCE($5, last_name),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, userColumns)

	user, err := scanUser(r.db.QueryRow(ctx, query, id, patch.Username, patch.Email, patch.FirstName, patch.LastName))
	if err != nil {
		return domain.User{}, mapNoRows(err)
	}
	return user, nil
}

// Delete removes a profile. Reviews are keyed by identity and are not
// touched here.
func (r *UsersRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every profile ordered by username.
func (r *UsersRepository) List(ctx context.Context) ([]domain.User, error) {
	query, args, err := dialect.From("users").Prepared(true).
		Select(
			goqu.C("id"),
			goqu.L("public_id::text"),
			goqu.C("username"),
			goqu.C("email"),
			goqu.C("first_name"),
			goqu.C("last_name"),
			goqu.C("created_at"),
			goqu.C("updated_at"),
		).
		Order(goqu.C("username").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build user list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.PublicID,
		&user.Username,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}
