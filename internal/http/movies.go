package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/auth"
	"github.com/Clark-Hu/movie-recommendation/internal/catalog"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

type movieListResponse struct {
	Items []movieResponse `json:"items"`
}

type catalogListResponse struct {
	Items      []catalogMovieResponse `json:"items"`
	NextCursor *string                `json:"next_cursor,omitempty"`
}

type ratingAggregateResponse struct {
	TMDBID        int64    `json:"tmdb_id"`
	AverageRating *float64 `json:"average_rating"`
	RatingsCount  int64    `json:"ratings_count"`
}

type rateResponse struct {
	Movie         movieResponse `json:"movie"`
	UserID        string        `json:"user_id"`
	Rating        int           `json:"rating"`
	AverageRating *float64      `json:"average_rating"`
	RatingsCount  int64         `json:"ratings_count"`
}

type clearCacheResponse struct {
	Prefix  string `json:"prefix,omitempty"`
	Removed int    `json:"removed"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	q, err := buildCatalogQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	page, err := s.catalog.ListCatalog(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, err, "Failed to list movies")
		return
	}

	items := make([]catalogMovieResponse, 0, len(page.Items))
	for _, movie := range page.Items {
		items = append(items, toCatalogMovieResponse(movie))
	}
	s.respondJSON(w, http.StatusOK, catalogListResponse{Items: items, NextCursor: page.NextCursor})
}

func buildCatalogQuery(query url.Values) (catalog.CatalogQuery, error) {
	var q catalog.CatalogQuery

	q.Title = strings.TrimSpace(query.Get("title"))
	if val := strings.TrimSpace(query.Get("tmdb_id")); val != "" {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			return q, fmt.Errorf("invalid tmdb_id value")
		}
		q.ExternalID = id
	}
	q.Years = parseYears(query.Get("year"))
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return q, fmt.Errorf("invalid limit value")
		}
		q.Limit = limit
	}
	q.Cursor = strings.TrimSpace(query.Get("cursor"))
	return q, nil
}

// parseYears reads a comma separated year list, skipping anything that is
// not a number.
func parseYears(raw string) []int {
	var years []int
	for _, part := range strings.Split(raw, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	return years
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	record, err := decodeRecord(w, r)
	if err != nil {
		s.respondDecodeError(w, err)
		return
	}

	movie, err := s.catalog.CreateMovie(r.Context(), record)
	if err != nil {
		s.respondServiceError(w, err, "Failed to create movie")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/movies/%d/rating", movie.ExternalID))
	s.respondJSON(w, http.StatusCreated, toCatalogMovieResponse(movie))
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	movies, err := s.catalog.Trending(r.Context(), query.Get("media_type"), query.Get("time_window"))
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch trending movies")
		return
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Items: toMovieResponses(movies)})
}

func (s *Server) handleRecommended(w http.ResponseWriter, r *http.Request) {
	q, err := buildRecommendationQuery(chi.URLParam(r, "movieID"), r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if q.MovieID == 0 && q.Title == "" {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "movie_id or title is required")
		return
	}

	movies, err := s.catalog.Recommendations(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch recommendations")
		return
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Items: toMovieResponses(movies)})
}

// buildRecommendationQuery prefers the path id over the movie_id query value.
func buildRecommendationQuery(pathID string, query url.Values) (catalog.RecommendationQuery, error) {
	var q catalog.RecommendationQuery

	rawID := strings.TrimSpace(pathID)
	if rawID == "" {
		rawID = strings.TrimSpace(query.Get("movie_id"))
	}
	if rawID != "" {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			return q, fmt.Errorf("invalid movie_id value")
		}
		q.MovieID = id
	}
	q.Title = strings.TrimSpace(query.Get("title"))
	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil {
			return q, fmt.Errorf("invalid page value")
		}
		q.Page = page
	}
	return q, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "title is required")
		return
	}

	movies, err := s.catalog.Search(r.Context(), title)
	if err != nil {
		s.respondServiceError(w, err, "Failed to search movies")
		return
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Items: toMovieResponses(movies)})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, err := externalIDParam(r, "movieID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	movie, err := s.catalog.Details(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch movie details")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponse(movie))
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	id, err := externalIDParam(r, "tmdbID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	agg, err := s.catalog.MovieRating(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, err, "Failed to fetch rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingAggregateResponse{
		TMDBID:        id,
		AverageRating: agg.Average,
		RatingsCount:  agg.Count,
	})
}

func (s *Server) handleRateMovie(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	record, err := decodeRecord(w, r)
	if err != nil {
		s.respondDecodeError(w, err)
		return
	}
	value, err := ratingValue(record)
	if err != nil {
		s.respondServiceError(w, err, "Failed to process rating")
		return
	}
	delete(record, "rating")

	movie, err := s.catalog.Normalizer().ForWrite(record)
	if err != nil {
		s.respondServiceError(w, err, "Failed to process rating")
		return
	}

	result, err := s.catalog.RateMovie(r.Context(), userID, movie, value)
	if err != nil {
		s.respondServiceError(w, err, "Failed to process rating")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	s.logger.Debug("rating stored",
		zap.String("user_id", userID),
		zap.Int64("tmdb_id", result.Movie.ExternalID),
		zap.Int("rating", result.Rating.Value))
	s.respondJSON(w, status, rateResponse{
		Movie:         toMovieResponse(result.Movie),
		UserID:        userID,
		Rating:        result.Rating.Value,
		AverageRating: result.Aggregate.Average,
		RatingsCount:  result.Aggregate.Count,
	})
}

// ratingValue extracts an integral rating from a decoded body.
func ratingValue(record map[string]any) (int, error) {
	invalid := domain.NewValidationError("rating", "must be an integer between 1 and 5")
	raw, ok := record["rating"]
	if !ok || raw == nil {
		return 0, domain.NewValidationError("rating", "is required")
	}
	var n int64
	switch v := raw.(type) {
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0, invalid
		}
		n = parsed
	case float64:
		if v != float64(int64(v)) {
			return 0, invalid
		}
		n = int64(v)
	default:
		return 0, invalid
	}
	if n < domain.MinRating || n > domain.MaxRating {
		return 0, invalid
	}
	return int(n), nil
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	removed, err := s.catalog.ClearCache(prefix)
	if err != nil {
		s.respondServiceError(w, err, "Failed to clear cache")
		return
	}
	s.logger.Info("cache cleared", zap.String("prefix", prefix), zap.Int("removed", removed))
	s.respondJSON(w, http.StatusOK, clearCacheResponse{Prefix: prefix, Removed: removed})
}

func externalIDParam(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return 0, fmt.Errorf("missing tmdb id parameter")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tmdb id parameter")
	}
	return id, nil
}
