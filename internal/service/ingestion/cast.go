package ingestion

import (
	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// SourceAlias is the alias given to the staging view in generated statements.
const SourceAlias = "s"

// BuildCastProjection returns one cast expression per column of schema, in
// schema order, converting the staged text value to the declared type and
// keeping the column name:
//
//	CAST(s."amount" AS DECIMAL(10,2)) AS "amount"
//
// Columns present in the staged file but absent from schema are not
// referenced. A column missing from the file fails when the statement runs.
func BuildCastProjection(schema domain.SchemaMap, alias string) ([]string, error) {
	out := make([]string, 0, len(schema))
	for _, c := range schema {
		expr, err := ddl.CastExpression(alias, c.Name, c.Type)
		if err != nil {
			return nil, domain.ErrValidation("%v", err)
		}
		out = append(out, expr)
	}
	return out, nil
}
