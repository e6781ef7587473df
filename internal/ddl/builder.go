// Package ddl builds DuckDB statements for schema lookup, staging views,
// schema-aligned writes, secrets, and catalog attachment. Every identifier that
// originates from a caller is validated and quoted before it reaches a statement.
package ddl

import (
	"fmt"
	"strings"
)

// QualifiedName validates and quotes a catalog.schema.table reference.
func QualifiedName(catalog, schema, table string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return QuoteIdentifier(catalog) + "." + QuoteIdentifier(schema) + "." + QuoteIdentifier(table), nil
}

// DescribeTable returns: DESCRIBE <catalog>."<schema>"."<table>".
// The result carries column_name and column_type in table order.
func DescribeTable(catalog, schema, table string) (string, error) {
	name, err := QualifiedName(catalog, schema, table)
	if err != nil {
		return "", err
	}
	return "DESCRIBE " + name, nil
}

// TruncateTable returns: TRUNCATE <catalog>."<schema>"."<table>".
func TruncateTable(catalog, schema, table string) (string, error) {
	name, err := QualifiedName(catalog, schema, table)
	if err != nil {
		return "", err
	}
	return "TRUNCATE " + name, nil
}

// FormatCSV is the only staging format supported.
const FormatCSV = "csv"

// CreateStagingView returns a statement defining a temporary view over a
// header-delimited file. All columns are read as VARCHAR so that the declared
// target types, not the sniffer, decide how values are coerced.
//
//	CREATE OR REPLACE TEMP VIEW "tmp_staging_1a2b3c4d" AS
//	SELECT * FROM read_csv('s3://...', header = true, delim = ',', all_varchar = true)
func CreateStagingView(name, sourceURI, format string, hasHeader bool) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid staging view name: %w", err)
	}
	if strings.TrimSpace(sourceURI) == "" {
		return "", fmt.Errorf("source path is required")
	}
	switch strings.ToLower(format) {
	case FormatCSV, "":
	default:
		return "", fmt.Errorf("unsupported file format: %q", format)
	}
	return fmt.Sprintf(
		"CREATE OR REPLACE TEMP VIEW %s AS SELECT * FROM read_csv(%s, header = %t, delim = ',', all_varchar = true)",
		QuoteIdentifier(name),
		QuoteLiteral(sourceURI),
		hasHeader,
	), nil
}

// DropView returns: DROP VIEW IF EXISTS "<name>".
func DropView(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid view name: %w", err)
	}
	return "DROP VIEW IF EXISTS " + QuoteIdentifier(name), nil
}

// CastExpression returns: CAST(<alias>."<column>" AS <type>) AS "<column>".
func CastExpression(alias, column, typeExpr string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid source alias: %w", err)
	}
	if column == "" {
		return "", fmt.Errorf("column name is required")
	}
	if err := ValidateTypeExpression(typeExpr); err != nil {
		return "", fmt.Errorf("invalid type for column %q: %w", column, err)
	}
	return fmt.Sprintf("CAST(%s.%s AS %s) AS %s",
		alias, QuoteIdentifier(column), typeExpr, QuoteIdentifier(column),
	), nil
}

// InsertSelect returns:
//
//	INSERT INTO <target> ("c1", "c2") SELECT <projection> FROM "<view>" AS <alias>
//
// target must already be a quoted qualified name.
func InsertSelect(target string, columns, projection []string, view, alias string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	if len(columns) != len(projection) {
		return "", fmt.Errorf("column count %d does not match projection count %d", len(columns), len(projection))
	}
	if err := ValidateIdentifier(view); err != nil {
		return "", fmt.Errorf("invalid staging view name: %w", err)
	}
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid source alias: %w", err)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s AS %s",
		target,
		quoteList(columns),
		strings.Join(projection, ", "),
		QuoteIdentifier(view),
		alias,
	), nil
}

// MergeSpec describes a whole-row upsert from a staging view into a target.
type MergeSpec struct {
	Target      string   // quoted qualified target name
	Columns     []string // target columns in schema order
	Projection  []string // cast expressions, one per column
	StagingView string
	Key         string
}

// MergeInto returns a MERGE statement joining the target (t) to the cast
// projection of the staging view (s) on the key column. Matched rows have every
// non-key column replaced; unmatched rows are inserted whole.
//
//	MERGE INTO <target> AS t
//	USING (SELECT <projection> FROM "<view>" AS s) AS s
//	ON t."id" = s."id"
//	WHEN MATCHED THEN UPDATE SET "val" = s."val"
//	WHEN NOT MATCHED THEN INSERT ("id", "val") VALUES (s."id", s."val")
func MergeInto(spec MergeSpec) (string, error) {
	if len(spec.Columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	if len(spec.Columns) != len(spec.Projection) {
		return "", fmt.Errorf("column count %d does not match projection count %d", len(spec.Columns), len(spec.Projection))
	}
	if err := ValidateIdentifier(spec.StagingView); err != nil {
		return "", fmt.Errorf("invalid staging view name: %w", err)
	}
	if spec.Key == "" {
		return "", fmt.Errorf("merge key is required")
	}

	key := QuoteIdentifier(spec.Key)
	var sets, values []string
	for _, c := range spec.Columns {
		q := QuoteIdentifier(c)
		values = append(values, "s."+q)
		if c == spec.Key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = s.%s", q, q))
	}

	matched := "DO NOTHING"
	if len(sets) > 0 {
		matched = "UPDATE SET " + strings.Join(sets, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS t\n", spec.Target)
	fmt.Fprintf(&b, "USING (SELECT %s FROM %s AS s) AS s\n", strings.Join(spec.Projection, ", "), QuoteIdentifier(spec.StagingView))
	fmt.Fprintf(&b, "ON t.%s = s.%s\n", key, key)
	fmt.Fprintf(&b, "WHEN MATCHED THEN %s\n", matched)
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)", quoteList(spec.Columns), strings.Join(values, ", "))
	return b.String(), nil
}

// DuplicateKey returns a query yielding one non-null key value that occurs more
// than once in the cast projection of the staging view, as text, or no row when
// every key is unique.
//
//	SELECT CAST(s."id" AS VARCHAR) FROM (SELECT <projection> FROM "<view>" AS s) AS s
//	WHERE s."id" IS NOT NULL GROUP BY s."id" HAVING count(*) > 1 LIMIT 1
func DuplicateKey(projection []string, view, key string) (string, error) {
	if len(projection) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	if err := ValidateIdentifier(view); err != nil {
		return "", fmt.Errorf("invalid staging view name: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("merge key is required")
	}
	k := "s." + QuoteIdentifier(key)
	return fmt.Sprintf("SELECT CAST(%s AS VARCHAR) FROM (SELECT %s FROM %s AS s) AS s WHERE %s IS NOT NULL GROUP BY %s HAVING count(*) > 1 LIMIT 1",
		k, strings.Join(projection, ", "), QuoteIdentifier(view), k, k,
	), nil
}

// PreviewCSV returns a query reading the first limit rows of a
// header-delimited file as text.
func PreviewCSV(sourceURI string, limit int) (string, error) {
	if strings.TrimSpace(sourceURI) == "" {
		return "", fmt.Errorf("source path is required")
	}
	if limit <= 0 {
		return "", fmt.Errorf("limit must be positive")
	}
	return fmt.Sprintf("SELECT * FROM read_csv(%s, header = true, delim = ',', all_varchar = true) LIMIT %d",
		QuoteLiteral(sourceURI), limit,
	), nil
}

// AttachDatabase returns: ATTACH '<path>' AS "<name>" [(READ_ONLY)].
func AttachDatabase(name, path string, readOnly bool) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("database path is required")
	}
	stmt := fmt.Sprintf("ATTACH IF NOT EXISTS %s AS %s", QuoteLiteral(path), QuoteIdentifier(name))
	if readOnly {
		stmt += " (READ_ONLY)"
	}
	return stmt, nil
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	opts := []string{
		"TYPE S3",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
	}
	if endpoint != "" {
		opts = append(opts, "ENDPOINT "+QuoteLiteral(endpoint))
	}
	if region != "" {
		opts = append(opts, "REGION "+QuoteLiteral(region))
	}
	if urlStyle != "" {
		opts = append(opts, "URL_STYLE "+QuoteLiteral(urlStyle))
	}
	return secretStmt(name, opts), nil
}

// CreateAzureSecret returns a DuckDB DDL statement to create an Azure secret.
// A connection string takes precedence over account credentials.
func CreateAzureSecret(name, accountName, accountKey, connectionString string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	if connectionString == "" {
		connectionString = fmt.Sprintf(
			"DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			accountName, accountKey,
		)
	}
	return secretStmt(name, []string{
		"TYPE AZURE",
		"CONNECTION_STRING " + QuoteLiteral(connectionString),
	}), nil
}

// CreateGCSSecret returns a DuckDB DDL statement to create a GCS secret from
// HMAC interoperability keys.
func CreateGCSSecret(name, keyID, secret string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	return secretStmt(name, []string{
		"TYPE GCS",
		"KEY_ID " + QuoteLiteral(keyID),
		"SECRET " + QuoteLiteral(secret),
	}), nil
}

// DropSecret returns: DROP SECRET IF EXISTS "<name>".
func DropSecret(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid secret name: %w", err)
	}
	return "DROP SECRET IF EXISTS " + QuoteIdentifier(name), nil
}

func secretStmt(name string, opts []string) string {
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (\n\t%s\n)", QuoteIdentifier(name), strings.Join(opts, ",\n\t"))
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}
