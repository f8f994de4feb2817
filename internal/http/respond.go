package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type movieResponse struct {
	ID          int64   `json:"id,omitempty"`
	TMDBID      int64   `json:"tmdb_id"`
	Title       string  `json:"title"`
	PosterURL   *string `json:"poster_url,omitempty"`
	ReleaseDate *string `json:"release_date,omitempty"`
	Year        *int    `json:"year,omitempty"`
}

type catalogMovieResponse struct {
	movieResponse
	AverageRating *float64 `json:"average_rating"`
	RatingsCount  int64    `json:"ratings_count"`
}

func toMovieResponse(movie domain.Movie) movieResponse {
	resp := movieResponse{
		ID:        movie.ID,
		TMDBID:    movie.ExternalID,
		Title:     movie.Title,
		PosterURL: movie.PosterURL,
		Year:      movie.Year,
	}
	if movie.ReleaseDate != nil {
		formatted := movie.ReleaseDate.Format(domain.DateLayout)
		resp.ReleaseDate = &formatted
	}
	return resp
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	items := make([]movieResponse, 0, len(movies))
	for _, movie := range movies {
		items = append(items, toMovieResponse(movie))
	}
	return items
}

func toCatalogMovieResponse(movie domain.CatalogMovie) catalogMovieResponse {
	return catalogMovieResponse{
		movieResponse: toMovieResponse(movie.Movie),
		AverageRating: movie.Rating.Average,
		RatingsCount:  movie.Rating.Count,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeRecord reads a free-form movie object. Numbers stay json.Number so
// large ids survive intact.
func decodeRecord(w http.ResponseWriter, r *http.Request) (normalize.Record, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var record normalize.Record
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, io.EOF
	}
	return record, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps catalog errors onto status codes. Anything
// unrecognised is logged and reported as a 500 with msg.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, msg string) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		conflictErr   *domain.ConflictError
		upstreamErr   *domain.UpstreamError
	)
	switch {
	case errors.As(err, &validationErr):
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Error(),
			Field:   validationErr.Field,
		})
	case errors.As(err, &notFoundErr):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error())
	case errors.As(err, &conflictErr):
		s.respondError(w, http.StatusConflict, "CONFLICT", conflictErr.Error())
	case errors.As(err, &upstreamErr):
		s.logger.Warn("upstream failure", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Movie metadata provider unavailable")
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", msg)
	}
}
