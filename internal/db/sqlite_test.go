package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantTxLock bool
	}{
		{ModeWrite, true},
		{ModeRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			dsn := buildDSN("/tmp/history.sqlite", tt.mode)
			assert.True(t, strings.HasPrefix(dsn, "/tmp/history.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			assert.Equal(t, tt.wantTxLock, strings.Contains(dsn, "_txlock=immediate"))
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	t.Run("invalid mode", func(t *testing.T) {
		_, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), "both", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid SQLite mode")
	})

	t.Run("write pool", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), ModeWrite, 8)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", strings.ToLower(journalMode))
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("read pool default size", func(t *testing.T) {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), ModeRead, 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		assert.Equal(t, 4, db.Stats().MaxOpenConnections)
	})

	t.Run("unreachable path", func(t *testing.T) {
		_, err := OpenSQLite("/nonexistent/dir/x.db", ModeWrite, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping sqlite")
	})
}

func TestRunMigrations(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	v, err := MigrationVersion(writeDB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Applying again is a no-op.
	require.NoError(t, RunMigrations(writeDB))

	var n int
	require.NoError(t, readDB.QueryRow("SELECT count(*) FROM write_history").Scan(&n))
	assert.Zero(t, n)
}

func TestOpenSQLitePair_ConcurrentWritersAndReaders(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = writeDB.Exec(`INSERT INTO write_history
					(principal_name, mode, catalog_name, schema_name, table_name, source_uri, success, message)
					VALUES ('p', 'append', 'c', 's', 't', '/f.csv', 1, 'ok')`)
				return
			}
			var n int
			errs[i] = readDB.QueryRow("SELECT count(*) FROM write_history").Scan(&n)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}

	var n int
	require.NoError(t, readDB.QueryRow("SELECT count(*) FROM write_history").Scan(&n))
	assert.Equal(t, 10, n)
}
