package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected an insert.
	ErrConflict = errors.New("repository: conflict")
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Movies    *MoviesRepository
	Ratings   *RatingsRepository
	Favorites *CollectionRepository
	Watchlist *CollectionRepository
	Activity  *ActivityRepository

	pool *pgxpool.Pool
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	r := bind(pool)
	r.pool = pool
	return r
}

func bind(db querier) *Repository {
	return &Repository{
		Movies:    &MoviesRepository{db: db},
		Ratings:   &RatingsRepository{db: db},
		Favorites: &CollectionRepository{db: db, table: "favorites", collection: domain.CollectionFavorites},
		Watchlist: &CollectionRepository{db: db, table: "watchlist", collection: domain.CollectionWatchlist},
		Activity:  &ActivityRepository{db: db},
	}
}

// InTx runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calling
// InTx on a transaction-bound Repository reuses the open transaction.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}

// Collection returns the repository backing the named per-user collection.
func (r *Repository) Collection(c domain.Collection) (*CollectionRepository, error) {
	switch c {
	case domain.CollectionFavorites:
		return r.Favorites, nil
	case domain.CollectionWatchlist:
		return r.Watchlist, nil
	default:
		return nil, fmt.Errorf("unknown collection %q", c)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
