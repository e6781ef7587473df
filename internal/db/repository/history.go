// Package repository persists write history in SQLite.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"duck-loader/internal/domain"
)

// timeLayout matches the column default strftime('%Y-%m-%dT%H:%M:%fZ').
const timeLayout = "2006-01-02T15:04:05.000Z"

// Compile-time interface check.
var _ domain.WriteHistoryRepository = (*WriteHistoryRepo)(nil)

// WriteHistoryRepo stores one row per dispatched write. Inserts go through the
// single-connection write pool; listings use the read pool.
type WriteHistoryRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewWriteHistoryRepo creates a new WriteHistoryRepo. readDB may equal writeDB.
func NewWriteHistoryRepo(writeDB, readDB *sql.DB) *WriteHistoryRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &WriteHistoryRepo{writeDB: writeDB, readDB: readDB}
}

// Insert stores rec and sets its ID and CreatedAt.
func (r *WriteHistoryRepo) Insert(ctx context.Context, rec *domain.WriteRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := r.writeDB.ExecContext(ctx, `INSERT INTO write_history (
			request_id, principal_name, mode, catalog_name, schema_name, table_name,
			source_uri, merge_key, success, error_kind, stage, message,
			rows_affected, staging_view, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.PrincipalName, string(rec.Mode),
		rec.Target.Catalog, rec.Target.Schema, rec.Target.Table,
		rec.SourceURI, nullString(rec.MergeKey), boolToInt(rec.Success),
		rec.ErrorKind, rec.Stage, rec.Message,
		rec.RowsAffected, rec.StagingView, rec.DurationMs,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert write history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert write history: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns records matching filter, newest first, and the total number
// of matching records.
func (r *WriteHistoryRepo) List(ctx context.Context, filter domain.HistoryFilter) ([]domain.WriteRecord, int64, error) {
	where, args := buildWhere(filter)

	var total int64
	if err := r.readDB.QueryRowContext(ctx,
		"SELECT count(*) FROM write_history"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count write history: %w", err)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.readDB.QueryContext(ctx, `SELECT
			id, request_id, principal_name, mode, catalog_name, schema_name, table_name,
			source_uri, merge_key, success, error_kind, stage, message,
			rows_affected, staging_view, duration_ms, created_at
		FROM write_history`+where+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?`,
		append(args, filter.EffectiveLimit(), offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list write history: %w", err)
	}
	defer rows.Close()

	out := []domain.WriteRecord{}
	for rows.Next() {
		var (
			rec       domain.WriteRecord
			mode      string
			mergeKey  sql.NullString
			success   int
			createdAt string
		)
		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.PrincipalName, &mode,
			&rec.Target.Catalog, &rec.Target.Schema, &rec.Target.Table,
			&rec.SourceURI, &mergeKey, &success, &rec.ErrorKind, &rec.Stage, &rec.Message,
			&rec.RowsAffected, &rec.StagingView, &rec.DurationMs, &createdAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan write history: %w", err)
		}
		rec.Mode = domain.WriteMode(mode)
		rec.Success = success != 0
		if mergeKey.Valid {
			k := mergeKey.String
			rec.MergeKey = &k
		}
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list write history: %w", err)
	}
	return out, total, nil
}

func buildWhere(f domain.HistoryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.PrincipalName != nil {
		add("principal_name = ?", *f.PrincipalName)
	}
	if f.Catalog != nil {
		add("catalog_name = ?", *f.Catalog)
	}
	if f.Schema != nil {
		add("schema_name = ?", *f.Schema)
	}
	if f.Table != nil {
		add("table_name = ?", *f.Table)
	}
	if f.Success != nil {
		add("success = ?", boolToInt(*f.Success))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
