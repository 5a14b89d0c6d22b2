package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libranexus/internal/config"
	"libranexus/internal/storage"
)

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, store storage.Store) {
	t.Helper()
	exerciseKeys(t, store, "library", "other")
}

func exerciseKeys(t *testing.T, store storage.Store, key, other string) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Put(ctx, key, []byte(`{"version":1}`)))
	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":1}`), got)

	require.NoError(t, store.Put(ctx, key, []byte(`{"version":2}`)))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":2}`), got)

	require.NoError(t, store.Put(ctx, other, []byte("x")))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":2}`), got)

	assert.ErrorIs(t, store.Put(ctx, "", []byte("x")), storage.ErrInvalidKey)
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	_, err = store.Get(context.Background(), "../escape")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary files must not be left behind")
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	store, err := storage.OpenBolt(path)
	require.NoError(t, err)

	exerciseStore(t, store)
	require.NoError(t, store.Close())

	reopened, err := storage.OpenBolt(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "library")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"version":2}`), got)
}

func TestSQLStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.sqlite")
	store, err := storage.OpenSQL(context.Background(), "sqlite3", path, nil)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

// TestSQLStore_Postgres skips when no database is reachable.
func TestSQLStore_Postgres(t *testing.T) {
	dsn := os.Getenv("LIBRARY_TEST_POSTGRES_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5432 user=user password=password dbname=testdb sslmode=disable"
	}

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			store, err := storage.OpenSQL(context.Background(), driver, dsn, nil)
			if err != nil {
				t.Skipf("skipping: could not connect to postgres: %v", err)
			}
			defer store.Close()

			// the database outlives the test; keys must be fresh per run
			run := strconv.FormatInt(time.Now().UnixNano(), 36)
			exerciseKeys(t, store, "library-"+run, "other-"+run)
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []config.Storage{
		{Driver: "file", Path: filepath.Join(dir, "files")},
		{Driver: "bolt", Path: filepath.Join(dir, "library.db")},
		{Driver: "sqlite3", Path: filepath.Join(dir, "library.sqlite")},
	}
	for _, cfg := range tests {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, err := storage.Open(context.Background(), cfg, nil)
			require.NoError(t, err)
			defer store.Close()

			exerciseStore(t, store)
		})
	}

	_, err := storage.Open(context.Background(), config.Storage{Driver: "mongo"}, nil)
	assert.Error(t, err)
}
