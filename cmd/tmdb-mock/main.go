package main

import (
	"flag"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/logging"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb/tmdbmock"
)

func main() {
	var (
		port   = flag.String("port", "9099", "port to listen on")
		data   = flag.String("data", "cmd/tmdb-mock/fixtures.json", "path to fixture file")
		apiKey = flag.String("api-key", "", "require this api_key on list calls")
		token  = flag.String("token", "", "require this bearer token on detail calls")
		level  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger, err := logging.New(*level, "console")
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	fixtures, err := tmdbmock.LoadFixtures(*data)
	if err != nil {
		logger.Fatal("load fixtures", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           tmdbmock.New(fixtures, *apiKey, *token).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("mock tmdb listening",
		zap.String("addr", srv.Addr),
		zap.Int("details", len(fixtures.Details)),
		zap.Int("trending_lists", len(fixtures.Trending)))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
