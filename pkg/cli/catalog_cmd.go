package cli

import (
	"context"

	"github.com/spf13/cobra"

	"duck-loader/internal/domain"
)

func newCatalogsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalogs",
		Short: "List attached catalogs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				names, err := s.app.Services.Catalog.ListCatalogs(ctx)
				if err != nil {
					return err
				}
				return printNames(cmd, "catalog", names)
			})
		},
	}
}

func newSchemasCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas <catalog>",
		Short: "List schemas in a catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				names, err := s.app.Services.Catalog.ListSchemas(ctx, args[0])
				if err != nil {
					return err
				}
				return printNames(cmd, "schema", names)
			})
		},
	}
}

func newTablesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <catalog> <schema>",
		Short: "List tables in a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				names, err := s.app.Services.Catalog.ListTables(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printNames(cmd, "table", names)
			})
		},
	}
}

func newColumnsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <catalog.schema.table>",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseTableRef(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				names, err := s.app.Services.Catalog.ListColumns(ctx, ref.Catalog, ref.Schema, ref.Table)
				if err != nil {
					return err
				}
				return printNames(cmd, "column", names)
			})
		},
	}
}
