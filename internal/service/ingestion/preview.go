package ingestion

import (
	"context"
	"database/sql"
	"fmt"

	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// DefaultPreviewRows is the number of rows shown when no limit is requested.
const DefaultPreviewRows = 10

// MaxPreviewRows caps a preview.
const MaxPreviewRows = 1000

// Querier runs read-only queries.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Previewer reads the header and leading rows of an uploaded file as text.
type Previewer struct {
	db Querier
}

// NewPreviewer creates a new Previewer.
func NewPreviewer(db Querier) *Previewer {
	return &Previewer{db: db}
}

// Preview returns up to limit rows of sourceURI. A non-positive limit uses
// DefaultPreviewRows.
func (p *Previewer) Preview(ctx context.Context, sourceURI string, limit int) (*domain.PreviewResult, error) {
	switch {
	case limit <= 0:
		limit = DefaultPreviewRows
	case limit > MaxPreviewRows:
		limit = MaxPreviewRows
	}
	stmt, err := ddl.PreviewCSV(sourceURI, limit)
	if err != nil {
		return nil, domain.ErrValidation("%v", err)
	}

	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &domain.StagingViewError{View: sourceURI, Op: "read", Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read preview columns: %w", err)
	}
	out := &domain.PreviewResult{Columns: cols, Rows: [][]string{}, Limit: limit}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan preview row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read preview rows: %w", err)
	}
	return out, nil
}
