package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

// MoviesRepository provides persistence helpers for catalog movies.
type MoviesRepository struct {
	db querier
}

// Every query aliases movies as m.
const movieColumns = `
    m.id,
    m.tmdb_id,
    m.title,
    m.poster_url,
    m.release_date,
    m.release_year,
    m.created_at,
    m.updated_at
`

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// MovieParams bundles the fields written for a movie.
type MovieParams struct {
	ExternalID  int64
	Title       string
	PosterURL   *string
	ReleaseDate *time.Time
}

// ParamsFromMovie copies the writable fields of m.
func ParamsFromMovie(m domain.Movie) MovieParams {
	return MovieParams{
		ExternalID:  m.ExternalID,
		Title:       m.Title,
		PosterURL:   m.PosterURL,
		ReleaseDate: m.ReleaseDate,
	}
}

// MovieListFilters encapsulates search and pagination options.
type MovieListFilters struct {
	Title      *string
	ExternalID *int64
	Years      []int
	Limit      int
	Cursor     *MovieCursor
}

// MovieCursor allows stable pagination over (created_at, id).
type MovieCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        int64     `json:"id"`
}

// MovieListResult returns the paginated payload.
type MovieListResult struct {
	Items      []domain.CatalogMovie
	NextCursor *string
}

// Create inserts a new movie row. A duplicate external id yields ErrConflict.
func (r *MoviesRepository) Create(ctx context.Context, params MovieParams) (domain.Movie, error) {
	query := fmt.Sprintf(`
        INSERT INTO movies AS m (tmdb_id, title, poster_url, release_date, release_year)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, movieColumns)

	row := r.db.QueryRow(ctx, query, params.ExternalID, params.Title, params.PosterURL, params.ReleaseDate, domain.YearOf(params.ReleaseDate))
	movie, err := scanMovie(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Movie{}, ErrConflict
		}
		return domain.Movie{}, err
	}
	return movie, nil
}

// GetOrCreate returns the movie with params.ExternalID, inserting it when
// absent. An existing row keeps its title; a missing poster or release date
// is backfilled from params. The boolean reports whether a row was inserted.
// Inside a transaction the row stays locked until commit.
func (r *MoviesRepository) GetOrCreate(ctx context.Context, params MovieParams) (domain.Movie, bool, error) {
	query := fmt.Sprintf(`
        INSERT INTO movies AS m (tmdb_id, title, poster_url, release_date, release_year)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (tmdb_id) DO UPDATE
        SET poster_url = COALESCE(m.poster_url, EXCLUDED.poster_url),
            release_date = COALESCE(m.release_date, EXCLUDED.release_date),
            release_year = COALESCE(m.release_year, EXCLUDED.release_year),
            updated_at = CASE
                WHEN (m.poster_url IS NULL AND EXCLUDED.poster_url IS NOT NULL)
                  OR (m.release_date IS NULL AND EXCLUDED.release_date IS NOT NULL)
                THEN now()
                ELSE m.updated_at
            END
        RETURNING %s, (xmax = 0) AS inserted
    `, movieColumns)

	var (
		movie    domain.Movie
		inserted bool
	)
	row := r.db.QueryRow(ctx, query, params.ExternalID, params.Title, params.PosterURL, params.ReleaseDate, domain.YearOf(params.ReleaseDate))
	err := row.Scan(append(movieDest(&movie), &inserted)...)
	if err != nil {
		return domain.Movie{}, false, err
	}
	finishMovie(&movie)
	return movie, inserted, nil
}

// GetByExternalID fetches a movie by its upstream identifier.
func (r *MoviesRepository) GetByExternalID(ctx context.Context, externalID int64) (domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies m WHERE m.tmdb_id = $1`, movieColumns)
	movie, err := scanMovie(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		return domain.Movie{}, notFound(err)
	}
	return movie, nil
}

// LockByID takes a row lock on the movie for the rest of the transaction.
func (r *MoviesRepository) LockByID(ctx context.Context, id int64) error {
	var locked int64
	err := r.db.QueryRow(ctx, `SELECT id FROM movies WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	return notFound(err)
}

// GetCatalogByExternalID returns the movie with its rating aggregate.
func (r *MoviesRepository) GetCatalogByExternalID(ctx context.Context, externalID int64) (domain.CatalogMovie, error) {
	result, err := r.List(ctx, MovieListFilters{ExternalID: &externalID, Limit: 1})
	if err != nil {
		return domain.CatalogMovie{}, err
	}
	if len(result.Items) == 0 {
		return domain.CatalogMovie{}, ErrNotFound
	}
	return result.Items[0], nil
}

// List returns movies that match the provided filters, newest first, each
// with its rating aggregate.
func (r *MoviesRepository) List(ctx context.Context, filters MovieListFilters) (MovieListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	} else if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}

	where := make([]string, 0)
	args := make([]any, 0)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Title != nil && strings.TrimSpace(*filters.Title) != "" {
		where = append(where, fmt.Sprintf("m.title ILIKE %s", arg("%"+strings.TrimSpace(*filters.Title)+"%")))
	}
	if filters.ExternalID != nil {
		where = append(where, fmt.Sprintf("m.tmdb_id = %s", arg(*filters.ExternalID)))
	}
	if len(filters.Years) > 0 {
		where = append(where, fmt.Sprintf("m.release_year = ANY(%s)", arg(filters.Years)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(m.created_at, m.id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(movieColumns)
	queryBuilder.WriteString(`, agg.average, agg.count
        FROM movies m
        LEFT JOIN LATERAL (
            SELECT ROUND(AVG(r.rating)::numeric, 2)::float8 AS average,
                   COUNT(*)::int8 AS count
            FROM ratings r
            WHERE r.movie_id = m.id
        ) agg ON true`)

	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY m.created_at DESC, m.id DESC")
	// One extra row tells us whether another page exists.
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit+1))

	rows, err := r.db.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return MovieListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.CatalogMovie, 0)
	for rows.Next() {
		var item domain.CatalogMovie
		dest := append(movieDest(&item.Movie), &item.Rating.Average, &item.Rating.Count)
		if err := rows.Scan(dest...); err != nil {
			return MovieListResult{}, err
		}
		finishMovie(&item.Movie)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return MovieListResult{}, err
	}

	var nextCursor *string
	if len(items) > filters.Limit {
		items = items[:filters.Limit]
		last := items[len(items)-1]
		token, err := encodeCursor(MovieCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return MovieListResult{}, err
		}
		nextCursor = &token
	}

	return MovieListResult{Items: items, NextCursor: nextCursor}, nil
}

func movieDest(movie *domain.Movie) []any {
	return []any{
		&movie.ID,
		&movie.ExternalID,
		&movie.Title,
		&movie.PosterURL,
		&movie.ReleaseDate,
		&movie.Year,
		&movie.CreatedAt,
		&movie.UpdatedAt,
	}
}

// finishMovie derives Year from the stored date so the two never disagree.
func finishMovie(movie *domain.Movie) {
	movie.SetReleaseDate(movie.ReleaseDate)
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var movie domain.Movie
	if err := row.Scan(movieDest(&movie)...); err != nil {
		return domain.Movie{}, err
	}
	finishMovie(&movie)
	return movie, nil
}

func encodeCursor(c MovieCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a MovieCursor.
func DecodeCursor(token string) (*MovieCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor MovieCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
