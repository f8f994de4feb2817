package catalog

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
)

// CollectionQuery filters a collection listing.
type CollectionQuery struct {
	Title      string
	ExternalID int64
}

// AddToCollection finds or creates the movie, then links it to the user's
// collection. Repeating the call for the same movie returns the existing
// entry with created=false. New links are written to the activity log.
func (s *Service) AddToCollection(ctx context.Context, c domain.Collection, userID string, input domain.Movie) (domain.CollectionEntry, bool, error) {
	if _, err := s.repo.Collection(c); err != nil {
		return domain.CollectionEntry{}, false, err
	}
	if err := validExternalID(input.ExternalID); err != nil {
		return domain.CollectionEntry{}, false, err
	}

	params, err := s.resolveMovie(ctx, input)
	if err != nil {
		return domain.CollectionEntry{}, false, err
	}

	var (
		entry   domain.CollectionEntry
		created bool
	)
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		movie, _, err := tx.Movies.GetOrCreate(ctx, params)
		if err != nil {
			return err
		}
		links, err := tx.Collection(c)
		if err != nil {
			return err
		}
		entry, created, err = links.Link(ctx, userID, movie)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		_, err = tx.Activity.Append(ctx, repository.ActivityParams{
			UserID:     userID,
			Movie:      movie,
			Collection: c,
			Action:     domain.ActionAdded,
		})
		return err
	})
	if err != nil {
		return domain.CollectionEntry{}, false, err
	}

	s.invalidate(cache.KeyPrefix(collectionKey(c, userID)), cache.KeyPrefix(OpCatalog))
	if created {
		s.logger.Debug("collection entry added",
			zap.String("collection", string(c)),
			zap.String("user_id", userID),
			zap.Int64("tmdb_id", entry.Movie.ExternalID))
	}
	return entry, created, nil
}

// RemoveFromCollection unlinks the movie from the user's collection. A
// missing entry is a NotFoundError.
func (s *Service) RemoveFromCollection(ctx context.Context, c domain.Collection, userID string, externalID int64) error {
	if _, err := s.repo.Collection(c); err != nil {
		return err
	}
	if err := validExternalID(externalID); err != nil {
		return err
	}

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		links, err := tx.Collection(c)
		if err != nil {
			return err
		}
		movie, err := links.Unlink(ctx, userID, externalID)
		if err != nil {
			return err
		}
		_, err = tx.Activity.Append(ctx, repository.ActivityParams{
			UserID:     userID,
			Movie:      movie,
			Collection: c,
			Action:     domain.ActionRemoved,
		})
		return err
	})
	if err != nil {
		return notFoundAs(err, string(c)+" entry", strconv.FormatInt(externalID, 10))
	}

	s.invalidate(cache.KeyPrefix(collectionKey(c, userID)))
	return nil
}

// ListCollection returns the user's entries, newest first, cached per user
// for the list TTL.
func (s *Service) ListCollection(ctx context.Context, c domain.Collection, userID string, q CollectionQuery) ([]domain.CollectionEntry, error) {
	links, err := s.repo.Collection(c)
	if err != nil {
		return nil, err
	}

	var filters repository.CollectionFilters
	params := cache.Params{}
	if title := strings.TrimSpace(q.Title); title != "" {
		filters.Title = &title
		params["title"] = strings.ToLower(title)
	}
	if q.ExternalID != 0 {
		if err := validExternalID(q.ExternalID); err != nil {
			return nil, err
		}
		id := q.ExternalID
		filters.ExternalID = &id
		params["tmdb_id"] = strconv.FormatInt(id, 10)
	}

	key := cache.Fingerprint(collectionKey(c, userID), params)
	entries, _, err := cache.GetOrFetch(ctx, s.cache, key, s.listTTL, func(ctx context.Context) ([]domain.CollectionEntry, error) {
		return links.List(ctx, userID, filters)
	})
	return entries, err
}

// AddFavorite is AddToCollection for the favorites list.
func (s *Service) AddFavorite(ctx context.Context, userID string, input domain.Movie) (domain.CollectionEntry, bool, error) {
	return s.AddToCollection(ctx, domain.CollectionFavorites, userID, input)
}

// RemoveFavorite is RemoveFromCollection for the favorites list.
func (s *Service) RemoveFavorite(ctx context.Context, userID string, externalID int64) error {
	return s.RemoveFromCollection(ctx, domain.CollectionFavorites, userID, externalID)
}

// Activity returns the user's collection activity log, newest first.
func (s *Service) Activity(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	return s.repo.Activity.ListByUser(ctx, userID, limit)
}
