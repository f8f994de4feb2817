package repository

import (
	"context"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200
)

// ActivityRepository appends to and reads the collection activity log.
// Rows are never updated.
type ActivityRepository struct {
	db querier
}

// ActivityParams describes one collection change.
type ActivityParams struct {
	UserID     string
	Movie      domain.Movie
	Collection domain.Collection
	Action     domain.ActivityAction
}

// Append records one activity entry stamped with the current time.
func (r *ActivityRepository) Append(ctx context.Context, params ActivityParams) (domain.Activity, error) {
	const query = `
        INSERT INTO favorite_activity (user_id, movie_id, tmdb_id, title, collection, action)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, user_id, tmdb_id, title, collection, action, created_at
    `
	var movieID *int64
	if params.Movie.ID > 0 {
		movieID = &params.Movie.ID
	}

	var activity domain.Activity
	err := r.db.QueryRow(ctx, query,
		params.UserID,
		movieID,
		params.Movie.ExternalID,
		params.Movie.Title,
		string(params.Collection),
		string(params.Action),
	).Scan(
		&activity.ID,
		&activity.UserID,
		&activity.ExternalID,
		&activity.Title,
		&activity.Collection,
		&activity.Action,
		&activity.CreatedAt,
	)
	if err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// ListByUser returns the user's activity, newest first.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	} else if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	const query = `
        SELECT id, user_id, tmdb_id, title, collection, action, created_at
        FROM favorite_activity
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Activity, 0)
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(
			&activity.ID,
			&activity.UserID,
			&activity.ExternalID,
			&activity.Title,
			&activity.Collection,
			&activity.Action,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
