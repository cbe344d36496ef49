// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/farmbot/core/database"
	"github.com/m3rciful/farmbot/internal/store"
)

// OpenDB returns a migrated SQLite handle living in t.TempDir.
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()
	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "farm.db")}
	require.NoError(t, cfg.Normalize())
	require.NoError(t, database.RunMigrations(cfg))

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// New returns a Store over a fresh migrated database.
func New(t testing.TB) *store.Store {
	t.Helper()
	return store.New(OpenDB(t))
}
