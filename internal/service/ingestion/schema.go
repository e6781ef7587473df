package ingestion

import (
	"context"
	"fmt"
	"strings"

	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// Column name pairs recognised in a table description, in preference order.
var describeColumns = [][2]string{
	{"column_name", "column_type"},
	{"col_name", "data_type"},
}

// SchemaAligner reads the declared column types of a target table.
type SchemaAligner struct{}

// GetSchema describes target and returns its columns in table order. Rows with
// a null or empty column name, and descriptive rows beginning with "#", are
// excluded. The result is read fresh on every call.
func (SchemaAligner) GetSchema(ctx context.Context, exec Executor, target domain.TableRef) (domain.SchemaMap, error) {
	stmt, err := ddl.DescribeTable(target.Catalog, target.Schema, target.Table)
	if err != nil {
		return nil, domain.ErrValidation("%v", err)
	}

	rows, err := exec.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &domain.SchemaLookupError{Table: target.String(), Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &domain.SchemaLookupError{Table: target.String(), Cause: err}
	}
	nameIdx, typeIdx := -1, -1
	for _, pair := range describeColumns {
		nameIdx, typeIdx = indexOf(cols, pair[0]), indexOf(cols, pair[1])
		if nameIdx >= 0 && typeIdx >= 0 {
			break
		}
	}
	if nameIdx < 0 || typeIdx < 0 {
		return nil, &domain.SchemaLookupError{
			Table: target.String(),
			Cause: fmt.Errorf("unrecognised description columns %v", cols),
		}
	}

	var schema domain.SchemaMap
	seen := make(map[string]bool)
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &domain.SchemaLookupError{Table: target.String(), Cause: err}
		}
		name, ok := stringValue(vals[nameIdx])
		if !ok || strings.TrimSpace(name) == "" || strings.HasPrefix(name, "#") || seen[name] {
			continue
		}
		typ, _ := stringValue(vals[typeIdx])
		seen[name] = true
		schema = append(schema, domain.Column{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.SchemaLookupError{Table: target.String(), Cause: err}
	}
	if len(schema) == 0 {
		return nil, &domain.SchemaLookupError{Table: target.String(), Cause: fmt.Errorf("table has no columns")}
	}
	return schema, nil
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func stringValue(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return fmt.Sprint(s), true
	}
}
