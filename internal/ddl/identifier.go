package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the maximum length allowed for a SQL identifier.
const maxIdentifierLen = 128

// maxTypeExprLen bounds a warehouse-reported column type. Nested STRUCT and
// MAP types can be long, so this is looser than an identifier.
const maxTypeExprLen = 256

// ValidateIdentifier checks that name is a safe SQL identifier:
//   - Non-empty
//   - At most 128 characters
//   - Matches [a-zA-Z_][a-zA-Z0-9_]*
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
//
// Always quotes unconditionally. Column names reported by the warehouse may
// contain spaces or mixed case and are only ever quoted, never validated.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// ValidateTypeExpression checks a column type string as reported by the
// warehouse before it is spliced into a CAST:
//   - Non-empty, at most 256 characters
//   - No statement separators or comments
//   - Balanced parentheses
func ValidateTypeExpression(typeExpr string) error {
	if strings.TrimSpace(typeExpr) == "" {
		return fmt.Errorf("column type is required")
	}
	if len(typeExpr) > maxTypeExprLen {
		return fmt.Errorf("column type must be at most %d characters", maxTypeExprLen)
	}
	if strings.Contains(typeExpr, ";") || strings.Contains(typeExpr, "--") || strings.Contains(typeExpr, "/*") {
		return fmt.Errorf("column type %q contains invalid characters", typeExpr)
	}
	depth := 0
	for _, r := range typeExpr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("column type %q has unbalanced parentheses", typeExpr)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("column type %q has unbalanced parentheses", typeExpr)
	}
	return nil
}
