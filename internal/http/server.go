package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/auth"
	"github.com/Clark-Hu/movie-recommendation/internal/catalog"
	"github.com/Clark-Hu/movie-recommendation/internal/config"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/ratelimit"
	"github.com/Clark-Hu/movie-recommendation/internal/store"
)

const limiterIdle = 10 * time.Minute

type healthResponse struct {
	Status string          `json:"status"`
	DB     store.PoolStats `json:"db"`
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	store    *store.Store
	catalog  *catalog.Service
	verifier *auth.Verifier
	limiter  *ratelimit.Keyed
	logger   *zap.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, svc *catalog.Service, verifier *auth.Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		catalog:  svc,
		verifier: verifier,
		logger:   logger.Named("http"),
	}
	if cfg.APIRatePerSec > 0 {
		s.limiter = ratelimit.NewKeyed("api", cfg.APIRatePerSec, cfg.APIRateBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.rateLimit)
	s.router = r
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/movies", func(r chi.Router) {
			r.Get("/", s.handleListMovies)
			r.With(s.requireAdmin).Post("/", s.handleCreateMovie)
			r.Get("/trending", s.handleTrending)
			r.Get("/search", s.handleSearch)
			r.Get("/details/{movieID}", s.handleDetails)
			r.Get("/recommended", s.handleRecommended)
			r.Get("/recommended/{movieID}", s.handleRecommended)
			r.Get("/{tmdbID}/rating", s.handleGetRating)
			r.With(s.requireAdmin).Post("/cache/clear", s.handleClearCache)
			r.With(s.requireUser).Post("/rate", s.handleRateMovie)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Route("/favorites", s.collectionRoutes(domain.CollectionFavorites))
			r.Route("/watchlist", s.collectionRoutes(domain.CollectionWatchlist))
			r.Get("/activity", s.handleActivity)
		})
	})
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	if s.limiter != nil {
		go s.sweepLimiter(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep(limiterIdle)
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", DB: s.store.Stats()})
}
