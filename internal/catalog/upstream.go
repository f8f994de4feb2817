package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb"
)

// Trending defaults and accepted values.
const (
	DefaultMediaType  = "movie"
	DefaultTimeWindow = "week"
	maxPage           = 500
)

var (
	mediaTypes  = map[string]struct{}{"movie": {}, "tv": {}, "all": {}, "person": {}}
	timeWindows = map[string]struct{}{"day": {}, "week": {}}
)

// RecommendationQuery addresses a recommendation list by upstream id or by title.
type RecommendationQuery struct {
	MovieID int64
	Title   string
	Page    int
}

// Trending returns the normalized trending list, cached for the upstream TTL.
func (s *Service) Trending(ctx context.Context, mediaType, window string) ([]domain.Movie, error) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		window = DefaultTimeWindow
	}
	if _, ok := mediaTypes[mediaType]; !ok {
		return nil, domain.NewValidationError("media_type", "must be one of movie, tv, all, person")
	}
	if _, ok := timeWindows[window]; !ok {
		return nil, domain.NewValidationError("time_window", "must be day or week")
	}

	key := cache.Fingerprint(tmdb.OpTrending, cache.Params{"media_type": mediaType, "time_window": window})
	movies, _, err := cache.GetOrFetch(ctx, s.cache, key, s.upstreamTTL, func(ctx context.Context) ([]domain.Movie, error) {
		raw, err := s.upstream.Trending(ctx, mediaType, window)
		if err != nil {
			return nil, err
		}
		return s.normalizer.Movies(raw), nil
	})
	return movies, err
}

// Recommendations returns one page of recommendations. A title is resolved
// to an upstream id through the cached search endpoint, taking the first hit.
func (s *Service) Recommendations(ctx context.Context, q RecommendationQuery) ([]domain.Movie, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 0 || q.Page > maxPage {
		return nil, domain.NewValidationError("page", "must be between 1 and 500")
	}
	if q.MovieID < 0 {
		return nil, domain.NewValidationError("movie_id", "must be a positive integer")
	}

	movieID := q.MovieID
	if movieID == 0 {
		title := strings.TrimSpace(q.Title)
		if title == "" {
			return nil, domain.NewValidationError("movie_id", "movie_id or title is required")
		}
		resolved, err := s.resolveTitle(ctx, title)
		if err != nil {
			return nil, err
		}
		movieID = resolved
	}

	key := cache.Fingerprint(tmdb.OpRecommendations, cache.Params{
		"movie_id": strconv.FormatInt(movieID, 10),
		"page":     strconv.Itoa(q.Page),
	})
	movies, _, err := cache.GetOrFetch(ctx, s.cache, key, s.upstreamTTL, func(ctx context.Context) ([]domain.Movie, error) {
		raw, err := s.upstream.Recommendations(ctx, movieID, q.Page)
		if err != nil {
			return nil, err
		}
		return s.normalizer.Movies(raw), nil
	})
	return movies, err
}

// Search returns the normalized search results for title.
func (s *Service) Search(ctx context.Context, title string) ([]domain.Movie, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.NewValidationError("title", "is required")
	}
	key := cache.Fingerprint(tmdb.OpSearch, cache.Params{"query": strings.ToLower(title)})
	movies, _, err := cache.GetOrFetch(ctx, s.cache, key, s.upstreamTTL, func(ctx context.Context) ([]domain.Movie, error) {
		raw, err := s.upstream.SearchByTitle(ctx, title)
		if err != nil {
			return nil, err
		}
		return s.normalizer.Movies(raw), nil
	})
	return movies, err
}

func (s *Service) resolveTitle(ctx context.Context, title string) (int64, error) {
	found, err := s.Search(ctx, title)
	if err != nil {
		return 0, err
	}
	for _, m := range found {
		if m.ExternalID > 0 {
			return m.ExternalID, nil
		}
	}
	return 0, &domain.NotFoundError{Resource: "movie", Key: title}
}

// Details returns the normalized detail record for an upstream id. An
// upstream 404 becomes a NotFoundError.
func (s *Service) Details(ctx context.Context, externalID int64) (domain.Movie, error) {
	if err := validExternalID(externalID); err != nil {
		return domain.Movie{}, err
	}
	key := cache.Fingerprint(tmdb.OpDetails, cache.Params{"movie_id": strconv.FormatInt(externalID, 10)})
	movie, _, err := cache.GetOrFetch(ctx, s.cache, key, s.upstreamTTL, func(ctx context.Context) (domain.Movie, error) {
		raw, err := s.upstream.Details(ctx, externalID)
		if err != nil {
			return domain.Movie{}, err
		}
		return s.normalizer.Movie(raw), nil
	})
	if err != nil {
		var upErr *domain.UpstreamError
		if errors.As(err, &upErr) && upErr.IsNotFound() {
			return domain.Movie{}, movieNotFound(externalID)
		}
		return domain.Movie{}, err
	}
	if movie.ExternalID == 0 {
		movie.ExternalID = externalID
	}
	return movie, nil
}
