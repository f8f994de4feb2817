package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-recommendation/internal/cache"
	"github.com/Clark-Hu/movie-recommendation/internal/domain"
	"github.com/Clark-Hu/movie-recommendation/internal/normalize"
	"github.com/Clark-Hu/movie-recommendation/internal/repository"
	"github.com/Clark-Hu/movie-recommendation/internal/tmdb"
)

type fakeUpstream struct {
	mu       sync.Mutex
	calls    map[string]int
	trending []map[string]any
	recs     map[int64][]map[string]any
	search   map[string][]map[string]any
	details  map[int64]map[string]any
	err      error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:   map[string]int{},
		recs:    map[int64][]map[string]any{},
		search:  map[string][]map[string]any{},
		details: map[int64]map[string]any{},
	}
}

func (f *fakeUpstream) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.err
}

func (f *fakeUpstream) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeUpstream) Trending(_ context.Context, _, _ string) ([]map[string]any, error) {
	if err := f.record(tmdb.OpTrending); err != nil {
		return nil, err
	}
	return f.trending, nil
}

func (f *fakeUpstream) Recommendations(_ context.Context, movieID int64, _ int) ([]map[string]any, error) {
	if err := f.record(tmdb.OpRecommendations); err != nil {
		return nil, err
	}
	return f.recs[movieID], nil
}

func (f *fakeUpstream) SearchByTitle(_ context.Context, title string) ([]map[string]any, error) {
	if err := f.record(tmdb.OpSearch); err != nil {
		return nil, err
	}
	return f.search[title], nil
}

func (f *fakeUpstream) Details(_ context.Context, movieID int64) (map[string]any, error) {
	if err := f.record(tmdb.OpDetails); err != nil {
		return nil, err
	}
	d, ok := f.details[movieID]
	if !ok {
		return nil, &domain.UpstreamError{Op: tmdb.OpDetails, Kind: domain.UpstreamHTTPStatus, StatusCode: http.StatusNotFound}
	}
	return d, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, upstream tmdb.Client, repo *repository.Repository) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := cache.New(cache.NewMemoryStore(), nil, cache.WithClock(clock.Now))
	svc := NewService(upstream, c, normalize.New("https://img.example/w500"), repo, Options{})
	return svc, clock
}

func TestTrendingCachesWithinTTL(t *testing.T) {
	up := newFakeUpstream()
	up.trending = []map[string]any{
		{"id": 550, "title": "Fight Club", "poster_path": "/fc.jpg", "release_date": "1999-10-15", "popularity": 9.5},
	}
	svc, clock := newTestService(t, up, nil)
	ctx := context.Background()

	first, err := svc.Trending(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(550), first[0].ExternalID)
	require.NotNil(t, first[0].PosterURL)
	assert.Equal(t, "https://img.example/w500/fc.jpg", *first[0].PosterURL)
	require.NotNil(t, first[0].Year)
	assert.Equal(t, 1999, *first[0].Year)

	clock.Advance(59 * time.Minute)
	second, err := svc.Trending(ctx, "movie", "week")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, up.count(tmdb.OpTrending))

	clock.Advance(2 * time.Minute)
	_, err = svc.Trending(ctx, "movie", "week")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count(tmdb.OpTrending))

	_, err = svc.Trending(ctx, "movie", "day")
	require.NoError(t, err)
	assert.Equal(t, 3, up.count(tmdb.OpTrending), "different window is a different key")
}

func TestTrendingEmptyListIsCached(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(t, up, nil)

	for i := 0; i < 2; i++ {
		movies, err := svc.Trending(context.Background(), "movie", "week")
		require.NoError(t, err)
		assert.NotNil(t, movies)
		assert.Empty(t, movies)
	}
	assert.Equal(t, 1, up.count(tmdb.OpTrending))
}

func TestTrendingUpstreamErrorIsNotCached(t *testing.T) {
	up := newFakeUpstream()
	up.setErr(&domain.UpstreamError{Op: tmdb.OpTrending, Kind: domain.UpstreamHTTPStatus, StatusCode: http.StatusServiceUnavailable})
	svc, _ := newTestService(t, up, nil)

	_, err := svc.Trending(context.Background(), "movie", "week")
	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)

	up.setErr(nil)
	_, err = svc.Trending(context.Background(), "movie", "week")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count(tmdb.OpTrending))
}

func TestTrendingValidation(t *testing.T) {
	svc, _ := newTestService(t, newFakeUpstream(), nil)

	tests := []struct {
		mediaType, window, field string
	}{
		{"films", "week", "media_type"},
		{"movie", "month", "time_window"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := svc.Trending(context.Background(), tt.mediaType, tt.window)
			var vErr *domain.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestRecommendationsByTitleUsesFirstIdentifiedHit(t *testing.T) {
	up := newFakeUpstream()
	up.search["Fight Club"] = []map[string]any{
		{"title": "No Id Result"},
		{"id": 550, "title": "Fight Club"},
		{"id": 551, "title": "Fight Club 2"},
	}
	up.recs[550] = []map[string]any{{"id": 807, "title": "Se7en"}}
	svc, _ := newTestService(t, up, nil)

	recs, err := svc.Recommendations(context.Background(), RecommendationQuery{Title: "Fight Club"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(807), recs[0].ExternalID)

	byID, err := svc.Recommendations(context.Background(), RecommendationQuery{MovieID: 550, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, recs, byID)
	assert.Equal(t, 1, up.count(tmdb.OpSearch))
	assert.Equal(t, 1, up.count(tmdb.OpRecommendations), "id and title lookups share a key")
}

func TestRecommendationsErrors(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(t, up, nil)
	ctx := context.Background()

	_, err := svc.Recommendations(ctx, RecommendationQuery{})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "movie_id", vErr.Field)

	_, err = svc.Recommendations(ctx, RecommendationQuery{MovieID: 1, Page: 501})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "page", vErr.Field)

	_, err = svc.Recommendations(ctx, RecommendationQuery{Title: "nothing matches"})
	var nfErr *domain.NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, "nothing matches", nfErr.Key)
	assert.Zero(t, up.count(tmdb.OpRecommendations))
}

func TestDetailsMapsUpstreamNotFound(t *testing.T) {
	up := newFakeUpstream()
	up.details[550] = map[string]any{"id": 550, "title": "Fight Club", "poster_path": "/fc.jpg"}
	svc, _ := newTestService(t, up, nil)

	movie, err := svc.Details(context.Background(), 550)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", movie.Title)

	_, err = svc.Details(context.Background(), 404)
	var nfErr *domain.NotFoundError
	require.True(t, errors.As(err, &nfErr))
	assert.Equal(t, "404", nfErr.Key)

	_, err = svc.Details(context.Background(), 0)
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestClearCacheByPrefix(t *testing.T) {
	up := newFakeUpstream()
	up.recs[1] = []map[string]any{{"id": 2, "title": "Two"}}
	svc, _ := newTestService(t, up, nil)
	ctx := context.Background()

	_, err := svc.Trending(ctx, "movie", "week")
	require.NoError(t, err)
	_, err = svc.Recommendations(ctx, RecommendationQuery{MovieID: 1})
	require.NoError(t, err)

	removed, err := svc.ClearCache(cache.KeyPrefix(tmdb.OpTrending))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Trending(ctx, "movie", "week")
	require.NoError(t, err)
	_, err = svc.Recommendations(ctx, RecommendationQuery{MovieID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, up.count(tmdb.OpTrending))
	assert.Equal(t, 1, up.count(tmdb.OpRecommendations))

	removed, err = svc.ClearCache("")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestConcurrentMissesAreNotCoalesced(t *testing.T) {
	up := newFakeUpstream()
	svc, _ := newTestService(t, up, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Trending(context.Background(), "movie", "week")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	calls := up.count(tmdb.OpTrending)
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 5, fmt.Sprintf("unexpected call count %d", calls))
}
