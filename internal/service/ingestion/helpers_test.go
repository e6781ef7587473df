package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/require"

	"duck-loader/internal/domain"
)

var ctx = context.Background()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB opens an in-memory DuckDB limited to one connection, so that
// temporary views left behind by a dispatch are visible to the test.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustExec(t *testing.T, db *sql.DB, stmt string) {
	t.Helper()
	_, err := db.ExecContext(ctx, stmt)
	require.NoError(t, err, stmt)
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func countStagingViews(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_views() WHERE temporary AND (view_name LIKE 'tmp_staging_%' OR view_name LIKE 'tmp_merge_%')",
	).Scan(&n))
	return n
}

func ref(table string) domain.TableRef {
	return domain.TableRef{Catalog: "memory", Schema: "main", Table: table}
}

func strPtr(s string) *string { return &s }

// faultExec records every statement and fails those starting with failPrefix.
type faultExec struct {
	Executor
	failPrefix string
	mu         *sync.Mutex
	stmts      *[]string
}

func (f faultExec) record(query string) error {
	f.mu.Lock()
	*f.stmts = append(*f.stmts, query)
	f.mu.Unlock()
	if f.failPrefix != "" && strings.HasPrefix(query, f.failPrefix) {
		return errInjected
	}
	return nil
}

func (f faultExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := f.record(query); err != nil {
		return nil, err
	}
	return f.Executor.ExecContext(ctx, query, args...)
}

func (f faultExec) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := f.record(query); err != nil {
		return nil, err
	}
	return f.Executor.QueryContext(ctx, query, args...)
}

var errInjected = errors.New("injected failure")

// panicExec panics on statements starting with prefix.
type panicExec struct {
	Executor
	prefix string
}

func (p panicExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if strings.HasPrefix(query, p.prefix) {
		panic("driver exploded")
	}
	return p.Executor.ExecContext(ctx, query, args...)
}

// newFaultyDispatcher returns a dispatcher whose sessions fail statements
// starting with failPrefix, plus the list of statements it ran.
func newFaultyDispatcher(db *sql.DB, cfg DispatcherConfig, failPrefix string) (*Dispatcher, *[]string) {
	d := NewDispatcher(db, cfg, testLogger())
	stmts := &[]string{}
	mu := &sync.Mutex{}
	d.wrap = func(e Executor) Executor {
		return faultExec{Executor: e, failPrefix: failPrefix, mu: mu, stmts: stmts}
	}
	return d, stmts
}

func hasPrefix(stmts []string, prefix string) bool {
	for _, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
