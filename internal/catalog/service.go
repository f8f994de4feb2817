// Package catalog implements the movie operations exposed by the API:
// cached upstream lookups, the local catalog, per-user collections and
// ratings.
package catalog

import (
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb"
)

// Default cache lifetimes.
const (
	DefaultUpstreamTTL = time.Hour
	DefaultListTTL     = 5 * time.Minute
)

// Cache operation names for views served from the local database.
const (
	OpCatalog = "catalog"
)

// Options tunes a Service.
type Options struct {
	UpstreamTTL time.Duration
	ListTTL     time.Duration
	Logger      *zap.Logger
}

// Service is the application layer shared by every HTTP handler.
type Service struct {
	upstream    tmdb.Client
	cache       *cache.Cache
	normalizer  *normalize.Normalizer
	repo        *repository.Repository
	logger      *zap.Logger
	upstreamTTL time.Duration
	listTTL     time.Duration
}

// NewService wires a Service. repo may be nil when only upstream operations
// are used.
func NewService(upstream tmdb.Client, c *cache.Cache, n *normalize.Normalizer, repo *repository.Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = normalize.New("")
	}
	if opts.UpstreamTTL <= 0 {
		opts.UpstreamTTL = DefaultUpstreamTTL
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = DefaultListTTL
	}
	return &Service{
		upstream:    upstream,
		cache:       c,
		normalizer:  n,
		repo:        repo,
		logger:      logger.Named("catalog"),
		upstreamTTL: opts.UpstreamTTL,
		listTTL:     opts.ListTTL,
	}
}

// Normalizer exposes the record normalizer for request decoding.
func (s *Service) Normalizer() *normalize.Normalizer {
	return s.normalizer
}

// ClearCache drops every cached entry, or only those under prefix.
func (s *Service) ClearCache(prefix string) (int, error) {
	if prefix == "" {
		return s.cache.Clear()
	}
	return s.cache.ClearPrefix(prefix)
}

// invalidate clears cached views after a write. Failures only cost freshness.
func (s *Service) invalidate(prefixes ...string) {
	for _, prefix := range prefixes {
		if _, err := s.cache.ClearPrefix(prefix); err != nil {
			s.logger.Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
}

func collectionKey(c domain.Collection, userID string) string {
	return string(c) + "/" + userID
}

func movieNotFound(externalID int64) error {
	return &domain.NotFoundError{Resource: "movie", Key: strconv.FormatInt(externalID, 10)}
}

// notFoundAs converts the repository sentinel into a keyed NotFoundError.
func notFoundAs(err error, resource, key string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.NotFoundError{Resource: resource, Key: key}
	}
	return err
}

func validExternalID(id int64) error {
	if id <= 0 {
		return domain.NewValidationError("tmdb_id", "must be a positive integer")
	}
	return nil
}
