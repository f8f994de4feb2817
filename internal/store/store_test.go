package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/movie-recommendation/internal/store"
	"github.com/Clark-Hu/movie-recommendation/internal/testutil"
)

func TestMigrateIsIdempotent(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()

	applied, err := store.Migrate(ctx, pool, testutil.MigrationsDir(), nil)
	require.NoError(t, err)
	assert.Zero(t, applied, "NewPool already migrated")

	files, err := store.MigrationFiles(testutil.MigrationsDir())
	require.NoError(t, err)

	var recorded int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&recorded))
	assert.Equal(t, len(files), recorded)
}

func TestMigrationFilesRequiresMigrations(t *testing.T) {
	_, err := store.MigrationFiles(t.TempDir())
	assert.ErrorContains(t, err, "no migrations")
}

func TestStoreLifecycle(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()

	st, err := store.New(ctx, pool.Config().ConnString(), store.Options{
		MaxConns:    4,
		ConnTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NoError(t, st.HealthCheck(ctx))
	assert.Equal(t, int32(4), st.Stats().MaxConns)

	applied, err := st.Migrate(ctx, testutil.MigrationsDir())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestNilStore(t *testing.T) {
	var st *store.Store
	assert.Error(t, st.HealthCheck(context.Background()))
	assert.Equal(t, store.PoolStats{}, st.Stats())
	_, err := st.Migrate(context.Background(), "db/migrations")
	assert.Error(t, err)
	st.Close()
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := store.New(context.Background(), "postgres://%zz", store.Options{})
	assert.ErrorContains(t, err, "parse db url")
}
