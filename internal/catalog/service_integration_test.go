package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
	"github.com/Clark-Hu/movie-recommendation/internal/testutil"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb"
)

func newIntegrationService(t *testing.T) (*Service, *fakeUpstream, *repository.Repository) {
	t.Helper()
	repo := repository.NewWithPool(testutil.NewPool(t))
	up := newFakeUpstream()
	up.details[550] = map[string]any{
		"id":           550,
		"title":        "Fight Club",
		"poster_path":  "/fc.jpg",
		"release_date": "1999-10-15",
	}
	svc, _ := newTestService(t, up, repo)
	return svc, up, repo
}

func TestAddFavoriteIsIdempotent(t *testing.T) {
	svc, up, repo := newIntegrationService(t)
	ctx := context.Background()

	first, created, err := svc.AddFavorite(ctx, "user1", domain.Movie{ExternalID: 550})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Fight Club", first.Movie.Title)
	require.NotNil(t, first.Movie.PosterURL)
	assert.Equal(t, "https://img.example/w500/fc.jpg", *first.Movie.PosterURL)

	second, created, err := svc.AddFavorite(ctx, "user1", domain.Movie{ExternalID: 550})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Movie.ID, second.Movie.ID)

	count, err := repo.Favorites.Count(ctx, "user1", 550)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	activity, err := svc.Activity(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, domain.ActionAdded, activity[0].Action)
	assert.Equal(t, domain.CollectionFavorites, activity[0].Collection)

	assert.Equal(t, 1, up.count(tmdb.OpDetails), "details are cached across adds")
}

func TestAddFavoriteUsesRequestFields(t *testing.T) {
	svc, up, _ := newIntegrationService(t)
	ctx := context.Background()

	poster := "https://img.example/w500/own.jpg"
	input := normalize.New("https://img.example/w500").Movie(map[string]any{
		"tmdb_id":      int64(77),
		"title":        "Local Only",
		"poster_url":   poster,
		"release_date": "2001-02-03",
	})
	entry, created, err := svc.AddToCollection(ctx, domain.CollectionWatchlist, "user1", input)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Local Only", entry.Movie.Title)
	assert.Zero(t, up.count(tmdb.OpDetails), "complete requests never hit upstream")
}

func TestAddFavoriteUnknownUpstreamMovie(t *testing.T) {
	svc, _, _ := newIntegrationService(t)

	_, _, err := svc.AddFavorite(context.Background(), "user1", domain.Movie{ExternalID: 999})
	var nfErr *domain.NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, "999", nfErr.Key)
}

func TestRemoveFavorite(t *testing.T) {
	svc, _, _ := newIntegrationService(t)
	ctx := context.Background()

	err := svc.RemoveFavorite(ctx, "user1", 550)
	var nfErr *domain.NotFoundError
	require.True(t, errors.As(err, &nfErr), "removing a missing favorite is not-found, got %v", err)

	_, _, err = svc.AddFavorite(ctx, "user1", domain.Movie{ExternalID: 550})
	require.NoError(t, err)
	require.NoError(t, svc.RemoveFavorite(ctx, "user1", 550))

	activity, err := svc.Activity(ctx, "user1", 0)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, domain.ActionRemoved, activity[0].Action)
	assert.Equal(t, domain.ActionAdded, activity[1].Action)

	err = svc.RemoveFavorite(ctx, "user1", 550)
	assert.True(t, errors.As(err, &nfErr))
}

func TestCollectionListingIsInvalidatedOnWrite(t *testing.T) {
	svc, up, _ := newIntegrationService(t)
	up.details[13] = map[string]any{"id": 13, "title": "Forrest Gump"}
	ctx := context.Background()

	empty, err := svc.ListCollection(ctx, domain.CollectionFavorites, "user1", CollectionQuery{})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, _, err = svc.AddFavorite(ctx, "user1", domain.Movie{ExternalID: 550})
	require.NoError(t, err)
	_, _, err = svc.AddFavorite(ctx, "user1", domain.Movie{ExternalID: 13})
	require.NoError(t, err)

	entries, err := svc.ListCollection(ctx, domain.CollectionFavorites, "user1", CollectionQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(13), entries[0].Movie.ExternalID, "newest first")

	filtered, err := svc.ListCollection(ctx, domain.CollectionFavorites, "user1", CollectionQuery{Title: "fight"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(550), filtered[0].Movie.ExternalID)

	other, err := svc.ListCollection(ctx, domain.CollectionFavorites, "user10", CollectionQuery{})
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, svc.RemoveFavorite(ctx, "user1", 13))
	after, err := svc.ListCollection(ctx, domain.CollectionFavorites, "user1", CollectionQuery{})
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestRateMovieReplacesPriorRating(t *testing.T) {
	svc, _, repo := newIntegrationService(t)
	ctx := context.Background()

	result, err := svc.RateMovie(ctx, "user1", domain.Movie{ExternalID: 550}, 3)
	require.NoError(t, err)
	assert.True(t, result.Created)

	result, err = svc.RateMovie(ctx, "user1", domain.Movie{ExternalID: 550}, 5)
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, int64(1), result.Aggregate.Count)
	require.NotNil(t, result.Aggregate.Average)
	assert.Equal(t, 5.0, *result.Aggregate.Average)

	stored, err := repo.Ratings.Get(ctx, result.Movie.ID, "user1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Value)
}

func TestRateMovieAggregate(t *testing.T) {
	svc, _, _ := newIntegrationService(t)
	ctx := context.Background()

	var last RatingResult
	for i, value := range []int{3, 4, 5} {
		var err error
		last, err = svc.RateMovie(ctx, fmt.Sprintf("user-%d", i), domain.Movie{ExternalID: 550}, value)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), last.Aggregate.Count)
	require.NotNil(t, last.Aggregate.Average)
	assert.Equal(t, 4.0, *last.Aggregate.Average)

	agg, err := svc.MovieRating(ctx, 550)
	require.NoError(t, err)
	assert.Equal(t, last.Aggregate, agg)

	page, err := svc.ListCatalog(ctx, CatalogQuery{ExternalID: 550})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, agg, page.Items[0].Rating)
}

func TestRateMovieValidation(t *testing.T) {
	svc, _, _ := newIntegrationService(t)
	ctx := context.Background()

	for _, value := range []int{0, 6} {
		_, err := svc.RateMovie(ctx, "user1", domain.Movie{ExternalID: 550}, value)
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "rating", vErr.Field)
	}

	_, err := svc.MovieRating(ctx, 550)
	var nfErr *domain.NotFoundError
	assert.True(t, errors.As(err, &nfErr))
}

func TestCreateMovieAndCatalogCache(t *testing.T) {
	svc, _, _ := newIntegrationService(t)
	ctx := context.Background()

	before, err := svc.ListCatalog(ctx, CatalogQuery{})
	require.NoError(t, err)
	assert.Empty(t, before.Items)

	created, err := svc.CreateMovie(ctx, normalize.Record{
		"id":           550,
		"title":        "Fight Club",
		"poster_path":  "/fc.jpg",
		"release_date": "1999-10-15",
		"vote_average": 8.4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(550), created.ExternalID)
	assert.Nil(t, created.Rating.Average)

	after, err := svc.ListCatalog(ctx, CatalogQuery{Years: []int{1999}})
	require.NoError(t, err)
	require.Len(t, after.Items, 1)
	assert.Equal(t, "https://img.example/w500/fc.jpg", *after.Items[0].PosterURL)

	_, err = svc.CreateMovie(ctx, normalize.Record{"tmdb_id": 550, "title": "Again"})
	var cErr *domain.ConflictError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, "550", cErr.Key)

	_, err = svc.CreateMovie(ctx, normalize.Record{"title": "No Id"})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "missing external id", vErr.Message)

	_, err = svc.ListCatalog(ctx, CatalogQuery{Cursor: "***"})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "cursor", vErr.Field)
}

