// Package engine opens the embedded DuckDB warehouse and prepares it for
// loading: extensions, attached catalogs, and storage secrets.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // register "duckdb" driver

	"duck-loader/internal/ddl"
)

// Open opens the DuckDB database at path and verifies the connection.
// An empty path opens an in-memory database whose default catalog is "memory".
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// ExtensionsFor returns the DuckDB extensions a volume backend needs in order
// for read_csv to reach uploaded files. The local backend needs none.
func ExtensionsFor(backend string) []string {
	switch backend {
	case "s3", "gcs":
		return []string{"httpfs"}
	case "azure":
		return []string{"azure"}
	default:
		return nil
	}
}

// InstallExtensions installs and loads the named DuckDB extensions.
func InstallExtensions(ctx context.Context, db *sql.DB, extensions ...string) error {
	for _, ext := range extensions {
		if err := ddl.ValidateIdentifier(ext); err != nil {
			return fmt.Errorf("invalid extension name %q: %w", ext, err)
		}
		stmt := fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("extension setup (%s): %w", ext, err)
		}
	}
	return nil
}

// Attachment is an additional DuckDB database file exposed as a catalog.
type Attachment struct {
	Name     string
	Path     string
	ReadOnly bool
}

// ParseAttachments parses "name=path" entries. A ":ro" suffix on the path
// attaches the database read-only.
func ParseAttachments(specs []string) ([]Attachment, error) {
	var out []Attachment
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid attachment %q: expected name=path", spec)
		}
		a := Attachment{Name: strings.TrimSpace(name), Path: strings.TrimSpace(path)}
		if p, found := strings.CutSuffix(a.Path, ":ro"); found {
			a.Path = p
			a.ReadOnly = true
		}
		if err := ddl.ValidateIdentifier(a.Name); err != nil {
			return nil, fmt.Errorf("invalid attachment %q: %w", spec, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// AttachDatabases attaches each database as a catalog. Attaching a name that
// is already present is a no-op.
func AttachDatabases(ctx context.Context, db *sql.DB, logger *slog.Logger, attachments []Attachment) error {
	for _, a := range attachments {
		stmt, err := ddl.AttachDatabase(a.Name, a.Path, a.ReadOnly)
		if err != nil {
			return fmt.Errorf("build DDL: %w", err)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("attach %s: %w", a.Name, err)
		}
		logger.Info("catalog attached", "catalog", a.Name, "path", a.Path, "read_only", a.ReadOnly)
	}
	return nil
}

// IsCatalogAttached reports whether a catalog with the given name is visible.
func IsCatalogAttached(ctx context.Context, db *sql.DB, name string) bool {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_databases() WHERE database_name = ?", name,
	).Scan(&n)
	return err == nil && n > 0
}
