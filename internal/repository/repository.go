package repository

import (
	"context"
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/rate-the-washroom/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repository: not found")

// DBTX is satisfied by both the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var dialect = goqu.Dialect("postgres")

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Facilities *FacilitiesRepository
	Reviews    *ReviewsRepository
	Users      *UsersRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Facilities: &FacilitiesRepository{db: pool},
		Reviews:    &ReviewsRepository{db: pool},
		Users:      &UsersRepository{db: pool},
	}
}

// WithTx returns a Repository whose statements run inside tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{
		Facilities: &FacilitiesRepository{db: tx},
		Reviews:    &ReviewsRepository{db: tx},
		Users:      &UsersRepository{db: tx},
	}
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
