package ingestion

import (
	"context"
	"database/sql"
)

// Executor runs statements on one warehouse session. *sql.Conn, *sql.Tx and
// *sql.DB all satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Connector hands out a dedicated session. Staging views are temporary and
// visible only to the session that created them, so every write operation
// runs all of its statements on one connection. *sql.DB satisfies it.
type Connector interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return -1
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}
