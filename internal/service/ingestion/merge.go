package ingestion

import (
	"context"
	"database/sql"
	"errors"

	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// MergeEngine upserts staged rows into a target keyed by one column.
type MergeEngine struct{}

// Merge joins the cast projection of view to target on key. Matched rows have
// every non-key column replaced by the staged values; unmatched rows are
// inserted. Target rows with no staged counterpart are left untouched.
//
// key must be spelled as declared in schema. A staged file that repeats a key
// value fails with a MergeKeyError before the target is touched, since the
// row that would win is undefined.
func (MergeEngine) Merge(
	ctx context.Context,
	exec Executor,
	target domain.TableRef,
	schema domain.SchemaMap,
	projection []string,
	view *StagingView,
	key string,
) (int64, error) {
	name, err := ddl.QualifiedName(target.Catalog, target.Schema, target.Table)
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}

	dupQuery, err := ddl.DuplicateKey(projection, view.Name, key)
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}
	dup, err := firstString(ctx, exec, dupQuery)
	if err != nil {
		return 0, &domain.CastError{Table: target.String(), Stage: "merge", Cause: err}
	}
	if dup != nil {
		return 0, &domain.MergeKeyError{Key: key, Table: target.String(), Duplicate: dup}
	}

	stmt, err := ddl.MergeInto(ddl.MergeSpec{
		Target:      name,
		Columns:     schema.Names(),
		Projection:  projection,
		StagingView: view.Name,
		Key:         key,
	})
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}
	res, err := exec.ExecContext(ctx, stmt)
	if err != nil {
		return 0, &domain.CastError{Table: target.String(), Stage: "merge", Cause: err}
	}
	return rowsAffected(res), nil
}

// firstString returns the first column of the first row, or nil when the
// query yields no rows.
func firstString(ctx context.Context, exec Executor, query string) (*string, error) {
	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var v sql.NullString
	if err := rows.Scan(&v); err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, errors.New("duplicate key check returned NULL")
	}
	return &v.String, nil
}
