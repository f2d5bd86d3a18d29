package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	t.Run("adds pragmas", func(t *testing.T) {
		dsn := sqliteDSN("file:test.db")
		assert.Contains(t, dsn, "file:test.db?")
		assert.Contains(t, dsn, "_pragma=busy_timeout%285000%29")
		assert.Contains(t, dsn, "_pragma=journal_mode%28WAL%29")
	})

	t.Run("appends to existing query", func(t *testing.T) {
		dsn := sqliteDSN("file:test.db?cache=shared")
		assert.Contains(t, dsn, "cache=shared&_pragma=")
	})

	t.Run("keeps caller pragmas", func(t *testing.T) {
		in := "file:test.db?_pragma=busy_timeout(100)"
		assert.Equal(t, in, sqliteDSN(in))
	})
}

func TestOpen(t *testing.T) {
	t.Run("opens sqlite file", func(t *testing.T) {
		db, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "gradegate.db"), Options{})
		require.NoError(t, err)
		defer db.Close()

		var mode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), "mysql", "x", Options{})
		require.Error(t, err)
	})
}
