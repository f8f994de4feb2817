package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

// CollectionRepository persists one kind of per-user movie list. The
// favorites and watchlist tables share a layout, so a single implementation
// serves both.
type CollectionRepository struct {
	db         querier
	table      string
	collection domain.Collection
}

// CollectionFilters narrows a collection listing.
type CollectionFilters struct {
	Title      *string
	ExternalID *int64
}

// Name reports which collection the repository serves.
func (r *CollectionRepository) Name() domain.Collection {
	return r.collection
}

// Link adds movie to the user's collection. Linking an already linked movie
// returns the existing entry with created=false.
func (r *CollectionRepository) Link(ctx context.Context, userID string, movie domain.Movie) (domain.CollectionEntry, bool, error) {
	insert := fmt.Sprintf(`
        INSERT INTO %s (user_id, movie_id)
        VALUES ($1,$2)
        ON CONFLICT (user_id, movie_id) DO NOTHING
        RETURNING added_at
    `, r.table)

	entry := domain.CollectionEntry{UserID: userID, Movie: movie}
	err := r.db.QueryRow(ctx, insert, userID, movie.ID).Scan(&entry.AddedAt)
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.CollectionEntry{}, false, err
	}

	existing := fmt.Sprintf(`SELECT added_at FROM %s WHERE user_id = $1 AND movie_id = $2`, r.table)
	if err := r.db.QueryRow(ctx, existing, userID, movie.ID).Scan(&entry.AddedAt); err != nil {
		return domain.CollectionEntry{}, false, notFound(err)
	}
	return entry, false, nil
}

// Unlink removes the movie with externalID from the user's collection and
// returns it. ErrNotFound means there was no such entry.
func (r *CollectionRepository) Unlink(ctx context.Context, userID string, externalID int64) (domain.Movie, error) {
	query := fmt.Sprintf(`
        DELETE FROM %s c
        USING movies m
        WHERE c.movie_id = m.id AND c.user_id = $1 AND m.tmdb_id = $2
        RETURNING %s
    `, r.table, movieColumns)

	movie, err := scanMovie(r.db.QueryRow(ctx, query, userID, externalID))
	if err != nil {
		return domain.Movie{}, notFound(err)
	}
	return movie, nil
}

// List returns the user's entries, most recently added first.
func (r *CollectionRepository) List(ctx context.Context, userID string, filters CollectionFilters) ([]domain.CollectionEntry, error) {
	where := []string{"c.user_id = $1"}
	args := []any{userID}
	if filters.Title != nil && strings.TrimSpace(*filters.Title) != "" {
		args = append(args, "%"+strings.TrimSpace(*filters.Title)+"%")
		where = append(where, fmt.Sprintf("m.title ILIKE $%d", len(args)))
	}
	if filters.ExternalID != nil {
		args = append(args, *filters.ExternalID)
		where = append(where, fmt.Sprintf("m.tmdb_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`
        SELECT %s, c.added_at
        FROM %s c
        JOIN movies m ON m.id = c.movie_id
        WHERE %s
        ORDER BY c.added_at DESC, m.id DESC
    `, movieColumns, r.table, strings.Join(where, " AND "))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CollectionEntry, 0)
	for rows.Next() {
		entry := domain.CollectionEntry{UserID: userID}
		var addedAt time.Time
		if err := rows.Scan(append(movieDest(&entry.Movie), &addedAt)...); err != nil {
			return nil, err
		}
		finishMovie(&entry.Movie)
		entry.AddedAt = addedAt
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns how many entries link userID to the movie with externalID.
func (r *CollectionRepository) Count(ctx context.Context, userID string, externalID int64) (int64, error) {
	query := fmt.Sprintf(`
        SELECT COUNT(*)
        FROM %s c
        JOIN movies m ON m.id = c.movie_id
        WHERE c.user_id = $1 AND m.tmdb_id = $2
    `, r.table)
	var count int64
	if err := r.db.QueryRow(ctx, query, userID, externalID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
