package httpserver

import (
	"fmt"
	"net/http"
	"testing"
)

func BenchmarkHandleRateMovie(b *testing.B) {
	srv, _ := buildTestServer(b)

	tokens := make([]string, 64)
	for i := range tokens {
		tokens[i] = userToken(b, fmt.Sprintf("bench-%d", i))
	}
	body := map[string]any{"tmdb_id": 550, "title": "Fight Club", "poster_url": "https://img.example/fc.jpg", "release_date": "1999-10-15", "rating": 4}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := doRequest(b, srv, http.MethodPost, "/api/movies/rate", tokens[i%len(tokens)], body)
		if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkTrendingCached(b *testing.B) {
	srv, _ := newTestServer(b, nil)
	doRequest(b, srv, http.MethodGet, "/api/movies/trending", "", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := doRequest(b, srv, http.MethodGet, "/api/movies/trending", "", nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
