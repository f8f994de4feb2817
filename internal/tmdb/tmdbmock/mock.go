// Package tmdbmock serves canned TMDb responses for local runs and tests.
package tmdbmock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Fixtures holds the canned payloads. Trending is keyed by
// "<media_type>/<time_window>", Search by lowercased query.
type Fixtures struct {
	Trending        map[string][]map[string]any `json:"trending"`
	Recommendations map[string][]map[string]any `json:"recommendations"`
	Search          map[string][]map[string]any `json:"search"`
	Details         map[string]map[string]any   `json:"details"`
}

// LoadFixtures reads fixtures from a JSON file.
func LoadFixtures(path string) (Fixtures, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := json.Unmarshal(payload, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return f, nil
}

// Server answers the subset of the TMDb v3 API the client uses.
type Server struct {
	fixtures Fixtures
	apiKey   string
	token    string

	mu    sync.Mutex
	calls map[string]int
}

// New returns a Server. Empty apiKey or token disables the matching check.
func New(f Fixtures, apiKey, token string) *Server {
	return &Server{fixtures: f, apiKey: apiKey, token: token, calls: map[string]int{}}
}

// Calls reports how many requests hit the named route: trending,
// recommendations, search or details.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/trending/{mediaType}/{window}", s.handleTrending)
	r.Get("/movie/{movieID}/recommendations", s.handleRecommendations)
	r.Get("/search/movie", s.handleSearch)
	r.Get("/movie/{movieID}", s.handleDetails)
	return r
}

func (s *Server) count(route string) {
	s.mu.Lock()
	s.calls[route]++
	s.mu.Unlock()
}

func (s *Server) keyOK(r *http.Request) bool {
	return s.apiKey == "" || r.URL.Query().Get("api_key") == s.apiKey
}

func (s *Server) tokenOK(r *http.Request) bool {
	return s.token == "" || r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	s.count("trending")
	if !s.keyOK(r) {
		writeStatus(w, http.StatusUnauthorized)
		return
	}
	key := chi.URLParam(r, "mediaType") + "/" + chi.URLParam(r, "window")
	writeResults(w, s.fixtures.Trending[key])
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.count("recommendations")
	if !s.keyOK(r) {
		writeStatus(w, http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "movieID")
	results, ok := s.fixtures.Recommendations[id]
	if !ok {
		if _, known := s.fixtures.Details[id]; !known {
			writeStatus(w, http.StatusNotFound)
			return
		}
	}
	writeResults(w, results)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.count("search")
	if !s.keyOK(r) {
		writeStatus(w, http.StatusUnauthorized)
		return
	}
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	writeResults(w, s.fixtures.Search[query])
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	s.count("details")
	if !s.tokenOK(r) {
		writeStatus(w, http.StatusUnauthorized)
		return
	}
	id := chi.URLParam(r, "movieID")
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		writeStatus(w, http.StatusNotFound)
		return
	}
	details, ok := s.fixtures.Details[id]
	if !ok {
		writeStatus(w, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func writeResults(w http.ResponseWriter, results []map[string]any) {
	if results == nil {
		results = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":          1,
		"results":       results,
		"total_pages":   1,
		"total_results": len(results),
	})
}

func writeStatus(w http.ResponseWriter, status int) {
	writeJSON(w, status, map[string]any{
		"success":        false,
		"status_message": http.StatusText(status),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
