package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movie-recommendation/internal/auth"
	"github.com/Clark-Hu/movie-recommendation/internal/catalog"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

type collectionEntryResponse struct {
	UserID  string        `json:"user_id"`
	Movie   movieResponse `json:"movie"`
	AddedAt time.Time     `json:"added_at"`
}

type collectionListResponse struct {
	Collection domain.Collection         `json:"collection"`
	Items      []collectionEntryResponse `json:"items"`
}

type activityListResponse struct {
	Items []domain.Activity `json:"items"`
}

func toCollectionEntryResponse(entry domain.CollectionEntry) collectionEntryResponse {
	return collectionEntryResponse{
		UserID:  entry.UserID,
		Movie:   toMovieResponse(entry.Movie),
		AddedAt: entry.AddedAt,
	}
}

func (s *Server) collectionRoutes(c domain.Collection) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", s.handleListCollection(c))
		r.Post("/", s.handleAddToCollection(c))
		r.Delete("/{tmdbID}", s.handleRemoveFromCollection(c))
	}
}

func (s *Server) handleListCollection(c domain.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFrom(r.Context())

		query := r.URL.Query()
		q := catalog.CollectionQuery{Title: strings.TrimSpace(query.Get("title"))}
		if val := strings.TrimSpace(query.Get("tmdb_id")); val != "" {
			id, err := strconv.ParseInt(val, 10, 64)
			if err != nil || id <= 0 {
				s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid tmdb_id value")
				return
			}
			q.ExternalID = id
		}

		entries, err := s.catalog.ListCollection(r.Context(), c, userID, q)
		if err != nil {
			s.respondServiceError(w, err, "Failed to list "+string(c))
			return
		}

		items := make([]collectionEntryResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, toCollectionEntryResponse(entry))
		}
		s.respondJSON(w, http.StatusOK, collectionListResponse{Collection: c, Items: items})
	}
}

// handleAddToCollection answers 201 for a new link and 200 when the movie
// was already in the collection.
func (s *Server) handleAddToCollection(c domain.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFrom(r.Context())

		record, err := decodeRecord(w, r)
		if err != nil {
			s.respondDecodeError(w, err)
			return
		}
		movie, err := s.catalog.Normalizer().ForWrite(record)
		if err != nil {
			s.respondServiceError(w, err, "Failed to add movie")
			return
		}

		entry, created, err := s.catalog.AddToCollection(r.Context(), c, userID, movie)
		if err != nil {
			s.respondServiceError(w, err, "Failed to add movie")
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		s.respondJSON(w, status, toCollectionEntryResponse(entry))
	}
}

func (s *Server) handleRemoveFromCollection(c domain.Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFrom(r.Context())

		id, err := externalIDParam(r, "tmdbID")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}

		if err := s.catalog.RemoveFromCollection(r.Context(), c, userID, id); err != nil {
			var notFoundErr *domain.NotFoundError
			if errors.As(err, &notFoundErr) {
				s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Movie not in "+string(c))
				return
			}
			s.respondServiceError(w, err, "Failed to remove movie")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	limit := 0
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed < 0 {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = parsed
	}

	items, err := s.catalog.Activity(r.Context(), userID, limit)
	if err != nil {
		s.respondServiceError(w, err, "Failed to list activity")
		return
	}
	if items == nil {
		items = []domain.Activity{}
	}
	s.respondJSON(w, http.StatusOK, activityListResponse{Items: items})
}
