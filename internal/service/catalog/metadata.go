// Package catalog lists the warehouse objects a write can target.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"duck-loader/internal/domain"
)

// Querier runs read-only queries.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Compile-time interface check.
var _ domain.MetadataCatalog = (*MetadataService)(nil)

// MetadataService lists catalogs, schemas, tables, and columns from the
// engine's information schema. Internal databases and system schemas are
// hidden.
type MetadataService struct {
	db Querier
}

// NewMetadataService creates a new MetadataService.
func NewMetadataService(db Querier) *MetadataService {
	return &MetadataService{db: db}
}

const (
	listCatalogsSQL = `SELECT database_name FROM duckdb_databases()
WHERE NOT internal
ORDER BY database_name`

	listSchemasSQL = `SELECT schema_name FROM information_schema.schemata
WHERE catalog_name = ? AND schema_name NOT IN ('information_schema', 'pg_catalog')
ORDER BY schema_name`

	listTablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_catalog = ? AND table_schema = ? AND table_type = 'BASE TABLE'
ORDER BY table_name`

	listColumnsSQL = `SELECT column_name FROM information_schema.columns
WHERE table_catalog = ? AND table_schema = ? AND table_name = ?
ORDER BY ordinal_position`
)

// ListCatalogs returns attached catalog names.
func (s *MetadataService) ListCatalogs(ctx context.Context) ([]string, error) {
	return s.names(ctx, listCatalogsSQL)
}

// ListSchemas returns the schemas of catalog.
func (s *MetadataService) ListSchemas(ctx context.Context, catalog string) ([]string, error) {
	if catalog == "" {
		return nil, domain.ErrValidation("catalog is required")
	}
	names, err := s.names(ctx, listSchemasSQL, catalog)
	if err != nil || len(names) > 0 {
		return names, err
	}
	return names, s.requireCatalog(ctx, catalog)
}

// ListTables returns the base tables of catalog.schema. Views are excluded.
func (s *MetadataService) ListTables(ctx context.Context, catalog, schema string) ([]string, error) {
	if catalog == "" || schema == "" {
		return nil, domain.ErrValidation("catalog and schema are required")
	}
	names, err := s.names(ctx, listTablesSQL, catalog, schema)
	if err != nil || len(names) > 0 {
		return names, err
	}
	return names, s.requireSchema(ctx, catalog, schema)
}

// ListColumns returns the columns of catalog.schema.table in table order.
func (s *MetadataService) ListColumns(ctx context.Context, catalog, schema, table string) ([]string, error) {
	if catalog == "" || schema == "" || table == "" {
		return nil, domain.ErrValidation("catalog, schema, and table are required")
	}
	names, err := s.names(ctx, listColumnsSQL, catalog, schema, table)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, domain.ErrNotFound("table %s.%s.%s not found", catalog, schema, table)
	}
	return names, nil
}

func (s *MetadataService) requireCatalog(ctx context.Context, catalog string) error {
	all, err := s.ListCatalogs(ctx)
	if err != nil {
		return err
	}
	for _, c := range all {
		if c == catalog {
			return nil
		}
	}
	return domain.ErrNotFound("catalog %q not found", catalog)
}

func (s *MetadataService) requireSchema(ctx context.Context, catalog, schema string) error {
	schemas, err := s.ListSchemas(ctx, catalog)
	if err != nil {
		return err
	}
	for _, sc := range schemas {
		if sc == schema {
			return nil
		}
	}
	return domain.ErrNotFound("schema %s.%s not found", catalog, schema)
}

func (s *MetadataService) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
