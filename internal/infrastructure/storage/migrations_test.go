package storage

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage/migrations"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "test.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrations_FreshDatabase(t *testing.T) {
	store := newTestStorage(t)

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(len(migrations.All())), version)

	for _, table := range []string{"sessions", "runs", "file_models", "learned_associations"} {
		var count int
		err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestMigrations_Idempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := NewStorage(path, quietLogger())
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(&Session{ID: "s1"}))
	require.NoError(t, store.Close())

	// Reopening must not re-run or fail
	store, err = NewStorage(path, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetSession("s1")
	assert.NoError(t, err)
	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMigrations_IndexesCreated(t *testing.T) {
	store := newTestStorage(t)

	var count int
	err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
