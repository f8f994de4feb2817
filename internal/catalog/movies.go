package catalog

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
)

// CatalogQuery filters the local catalog listing.
type CatalogQuery struct {
	Title      string
	ExternalID int64
	Years      []int
	Limit      int
	Cursor     string
}

// CatalogPage is one page of catalog movies.
type CatalogPage struct {
	Items      []domain.CatalogMovie `json:"items"`
	NextCursor *string               `json:"next_cursor,omitempty"`
}

// RatingResult is the outcome of RateMovie.
type RatingResult struct {
	Movie     domain.Movie
	Rating    domain.Rating
	Created   bool
	Aggregate domain.RatingAggregate
}

// ListCatalog returns stored movies with their rating aggregates. Pages are
// cached for the list TTL and dropped whenever the catalog or a rating changes.
func (s *Service) ListCatalog(ctx context.Context, q CatalogQuery) (CatalogPage, error) {
	filters := repository.MovieListFilters{Limit: q.Limit}
	params := cache.Params{}

	if title := strings.TrimSpace(q.Title); title != "" {
		filters.Title = &title
		params["title"] = strings.ToLower(title)
	}
	if q.ExternalID != 0 {
		if err := validExternalID(q.ExternalID); err != nil {
			return CatalogPage{}, err
		}
		id := q.ExternalID
		filters.ExternalID = &id
		params["tmdb_id"] = strconv.FormatInt(id, 10)
	}
	if len(q.Years) > 0 {
		years := append([]int(nil), q.Years...)
		sort.Ints(years)
		filters.Years = years
		parts := make([]string, len(years))
		for i, y := range years {
			parts[i] = strconv.Itoa(y)
		}
		params["year"] = strings.Join(parts, ",")
	}
	if q.Limit != 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Cursor != "" {
		cursor, err := repository.DecodeCursor(q.Cursor)
		if err != nil {
			return CatalogPage{}, domain.NewValidationError("cursor", "invalid cursor")
		}
		filters.Cursor = cursor
		params["cursor"] = q.Cursor
	}

	key := cache.Fingerprint(OpCatalog, params)
	page, _, err := cache.GetOrFetch(ctx, s.cache, key, s.listTTL, func(ctx context.Context) (CatalogPage, error) {
		result, err := s.repo.Movies.List(ctx, filters)
		if err != nil {
			return CatalogPage{}, err
		}
		return CatalogPage{Items: result.Items, NextCursor: result.NextCursor}, nil
	})
	return page, err
}

// CreateMovie stores an explicitly supplied movie. raw may use the canonical
// or any upstream field names. A duplicate external id is a ConflictError.
func (s *Service) CreateMovie(ctx context.Context, raw normalize.Record) (domain.CatalogMovie, error) {
	movie, err := s.normalizer.ForWrite(raw)
	if err != nil {
		return domain.CatalogMovie{}, err
	}
	if movie.Title == "" {
		return domain.CatalogMovie{}, domain.NewValidationError("title", "is required")
	}

	created, err := s.repo.Movies.Create(ctx, repository.ParamsFromMovie(movie))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.CatalogMovie{}, &domain.ConflictError{Resource: "movie", Key: strconv.FormatInt(movie.ExternalID, 10)}
		}
		return domain.CatalogMovie{}, err
	}
	s.invalidate(cache.KeyPrefix(OpCatalog))
	s.logger.Info("movie created", zap.Int64("tmdb_id", created.ExternalID), zap.Int64("id", created.ID))
	return domain.CatalogMovie{Movie: created}, nil
}

// MovieRating returns the live rating aggregate of a stored movie.
func (s *Service) MovieRating(ctx context.Context, externalID int64) (domain.RatingAggregate, error) {
	if err := validExternalID(externalID); err != nil {
		return domain.RatingAggregate{}, err
	}
	movie, err := s.repo.Movies.GetByExternalID(ctx, externalID)
	if err != nil {
		return domain.RatingAggregate{}, notFoundAs(err, "movie", strconv.FormatInt(externalID, 10))
	}
	return s.repo.Ratings.Aggregate(ctx, movie.ID)
}

// RateMovie records the user's rating, replacing any earlier one, and returns
// the recomputed aggregate. The movie row is locked for the upsert and the
// aggregate read so concurrent raters always observe their own write.
func (s *Service) RateMovie(ctx context.Context, userID string, input domain.Movie, value int) (RatingResult, error) {
	if err := validExternalID(input.ExternalID); err != nil {
		return RatingResult{}, err
	}
	if value < domain.MinRating || value > domain.MaxRating {
		return RatingResult{}, domain.NewValidationError("rating", "must be an integer between 1 and 5")
	}

	params, err := s.resolveMovie(ctx, input)
	if err != nil {
		return RatingResult{}, err
	}

	var result RatingResult
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		movie, _, err := tx.Movies.GetOrCreate(ctx, params)
		if err != nil {
			return err
		}
		if err := tx.Movies.LockByID(ctx, movie.ID); err != nil {
			return err
		}
		rating, created, err := tx.Ratings.Upsert(ctx, repository.RatingUpsertParams{
			MovieID: movie.ID,
			UserID:  userID,
			Value:   value,
		})
		if err != nil {
			return err
		}
		agg, err := tx.Ratings.Aggregate(ctx, movie.ID)
		if err != nil {
			return err
		}
		result = RatingResult{Movie: movie, Rating: rating, Created: created, Aggregate: agg}
		return nil
	})
	if err != nil {
		return RatingResult{}, notFoundAs(err, "movie", strconv.FormatInt(input.ExternalID, 10))
	}

	s.invalidate(cache.KeyPrefix(OpCatalog))
	return result, nil
}

// resolveMovie builds the write parameters for a movie referenced by a user
// action. Fields missing from both the stored row and the request are looked
// up upstream. The lookup is mandatory only when no title is known.
func (s *Service) resolveMovie(ctx context.Context, input domain.Movie) (repository.MovieParams, error) {
	params := repository.ParamsFromMovie(input)

	existing, err := s.repo.Movies.GetByExternalID(ctx, input.ExternalID)
	switch {
	case err == nil:
		params.Title = existing.Title
		if existing.PosterURL != nil {
			params.PosterURL = existing.PosterURL
		}
		if existing.ReleaseDate != nil {
			params.ReleaseDate = existing.ReleaseDate
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return repository.MovieParams{}, err
	}

	if params.Title != "" && params.PosterURL != nil && params.ReleaseDate != nil {
		return params, nil
	}

	details, err := s.Details(ctx, input.ExternalID)
	if err != nil {
		if params.Title == "" {
			return repository.MovieParams{}, err
		}
		s.logger.Warn("details backfill failed", zap.Int64("tmdb_id", input.ExternalID), zap.Error(err))
		return params, nil
	}
	if params.Title == "" {
		params.Title = details.Title
	}
	if params.PosterURL == nil {
		params.PosterURL = details.PosterURL
	}
	if params.ReleaseDate == nil {
		params.ReleaseDate = details.ReleaseDate
	}
	if params.Title == "" {
		return repository.MovieParams{}, domain.NewValidationError("title", "is required and unknown upstream")
	}
	return params, nil
}
