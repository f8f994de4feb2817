package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/auth"
	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/catalog"
	"github.com/Clark-Hu/movie-recommendation/internal/config"
	httpserver "github.com/Clark-Hu/movie-recommendation/internal/http"
	"github.com/Clark-Hu/movie-recommendation/internal/logging"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
	"github.com/Clark-Hu/movie-recommendation/internal/ratelimit"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
	"github.com/Clark-Hu/movie-recommendation/internal/store"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if cfg.DBAutoMigrate {
		applied, err := st.Migrate(ctx, cfg.DBMigrationsDir)
		if err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("schema up to date", zap.Int("applied", applied))
	}

	responseCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer responseCache.Close()
	go responseCache.RunJanitor(ctx, time.Duration(cfg.CacheSweepSecs)*time.Second)

	upstream, err := tmdb.NewHTTPClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey,
		time.Duration(cfg.TMDBTimeoutSecs)*time.Second,
		logger.Named("tmdb"),
		tmdb.WithBearerToken(cfg.TMDBAPIToken),
		tmdb.WithRateLimiter(ratelimit.New("tmdb", cfg.TMDBRatePerSec)))
	if err != nil {
		return fmt.Errorf("init tmdb client: %w", err)
	}

	svc := catalog.NewService(upstream, responseCache, normalize.New(cfg.TMDBImageBaseURL), repository.New(st), catalog.Options{
		UpstreamTTL: time.Duration(cfg.CacheUpstreamTTLSecs) * time.Second,
		ListTTL:     time.Duration(cfg.CacheCatalogTTLSecs) * time.Second,
		Logger:      logger,
	})
	server := httpserver.New(cfg, st, svc, auth.NewVerifier(cfg.JWTSecret), logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	var serveErr error
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	logger.Info("stopped")
	return serveErr
}

func openCache(cfg config.Config, logger *zap.Logger) (*cache.Cache, error) {
	var backing cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendBolt:
		bolt, err := cache.OpenBoltStore(cfg.CacheBoltPath)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		backing = bolt
	default:
		backing = cache.NewMemoryStore()
	}
	logger.Info("response cache ready", zap.String("backend", cfg.CacheBackend))
	return cache.New(backing, logger.Named("cache")), nil
}
