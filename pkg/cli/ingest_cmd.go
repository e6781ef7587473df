package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"duck-loader/internal/domain"
	"duck-loader/internal/service/ingestion"
)

func newPutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file>",
		Short: "Upload a CSV file to the volume and print its key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				f, err := s.app.Services.Ingestion.UploadLocal(ctx, args[0])
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), map[string]string{"name": f.Name, "key": f.Key, "source_uri": f.RemoteURI})
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), f.Key)
				return nil
			})
		},
	}
}

func newPreviewCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "preview <key>",
		Short: "Show the first rows of an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				res, err := s.app.Services.Ingestion.Preview(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
						"columns": res.Columns,
						"rows":    res.Rows,
						"limit":   res.Limit,
					})
				}
				PrintTable(cmd.OutOrStdout(), res.Columns, res.Rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", ingestion.DefaultPreviewRows, "number of rows to show")
	return cmd
}

type writeFlags struct {
	mode     string
	table    string
	source   string
	file     string
	mergeKey string
}

func newWriteCmd(opts *globalOptions) *cobra.Command {
	var f writeFlags
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write an uploaded file into a table",
		Long: `Write a CSV file into an existing table. Every column is cast to the
table's declared type. Modes:

  overwrite  replace the table's rows with the file's rows
  append     add the file's rows
  merge      update rows whose --merge-key matches and insert the rest`,
		Example: `  duckload write --mode append --table memory.main.orders --file orders.csv
  duckload write --mode merge --merge-key id --table lake.sales.orders --source uploads/0f1e_orders.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := domain.ParseWriteMode(f.mode)
			if err != nil {
				return err
			}
			target, err := domain.ParseTableRef(f.table)
			if err != nil {
				return err
			}
			if (f.source == "") == (f.file == "") {
				return domain.ErrValidation("exactly one of --source or --file is required")
			}

			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				source := f.source
				if f.file != "" {
					up, err := s.app.Services.Ingestion.UploadLocal(ctx, f.file)
					if err != nil {
						return err
					}
					source = up.Key
				}
				req := domain.WriteRequest{Mode: mode, Target: target, SourceKey: source}
				if cmd.Flags().Changed("merge-key") {
					key := f.mergeKey
					req.MergeKey = &key
				}

				res := s.app.Services.Ingestion.Write(ctx, req)
				if err := printWriteResult(cmd, res); err != nil {
					return err
				}
				if !res.Success {
					return errWriteFailed{res: res}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "write mode: overwrite, append, or merge")
	cmd.Flags().StringVarP(&f.table, "table", "t", "", "target table as catalog.schema.table")
	cmd.Flags().StringVar(&f.source, "source", "", "volume key of an already uploaded file, as printed by put")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "local CSV file to upload first")
	cmd.Flags().StringVarP(&f.mergeKey, "merge-key", "k", "", "key column for merge mode")
	_ = cmd.MarkFlagRequired("mode")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"overwrite", "append", "merge"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// errWriteFailed carries a failed result so the exit status is non-zero
// after the result has been printed.
type errWriteFailed struct{ res *domain.WriteResult }

func (e errWriteFailed) Error() string { return e.res.Message }

func (e errWriteFailed) Unwrap() error { return e.res.Err }

func printWriteResult(cmd *cobra.Command, res *domain.WriteResult) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		warnings := res.Warnings
		if warnings == nil {
			warnings = []string{}
		}
		return PrintJSON(out, map[string]interface{}{
			"success":       res.Success,
			"header":        res.Header,
			"message":       res.Message,
			"mode":          res.Mode,
			"target":        res.Target.String(),
			"state":         res.State,
			"stage":         res.Stage,
			"error_kind":    res.ErrorKind(),
			"rows_affected": res.RowsAffected,
			"staging_view":  res.StagingView,
			"warnings":      warnings,
			"duration_ms":   res.Duration.Milliseconds(),
		})
	}
	if !res.Success {
		// The message goes to stderr through the returned error.
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", res.Header, res.Message)
	for _, w := range res.Warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		table     string
		principal string
		status    string
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded writes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.HistoryFilter{Limit: limit, Offset: offset}
			if table != "" {
				ref, err := domain.ParseTableRef(table)
				if err != nil {
					return err
				}
				filter.Catalog, filter.Schema, filter.Table = &ref.Catalog, &ref.Schema, &ref.Table
			}
			if principal != "" {
				filter.PrincipalName = &principal
			}
			switch strings.ToLower(status) {
			case "":
			case "success":
				ok := true
				filter.Success = &ok
			case "failed":
				ok := false
				filter.Success = &ok
			default:
				return domain.ErrValidation("--status must be success or failed, got %q", status)
			}

			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				recs, total, err := s.app.Services.Ingestion.History(ctx, filter)
				if err != nil {
					return err
				}
				if getOutputFormat(cmd) == "json" {
					return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{"records": recs, "total": total})
				}
				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					result := "ok"
					if !r.Success {
						result = r.ErrorKind
					}
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						r.CreatedAt.Format("2006-01-02 15:04:05"),
						r.PrincipalName,
						string(r.Mode),
						r.Target.String(),
						result,
						strconv.FormatInt(r.RowsAffected, 10),
						r.Message,
					})
				}
				PrintTable(cmd.OutOrStdout(), []string{"id", "created", "principal", "mode", "target", "result", "rows", "message"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "only writes to catalog.schema.table")
	cmd.Flags().StringVar(&principal, "by", "", "only writes by this principal")
	cmd.Flags().StringVar(&status, "status", "", "only successful (success) or failed (failed) writes")
	cmd.Flags().IntVarP(&limit, "limit", "n", domain.DefaultHistoryLimit, "maximum number of records")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	return cmd
}

// isWriteFailure reports whether err came from a failed write result.
func isWriteFailure(err error) bool {
	var wf errWriteFailed
	return errors.As(err, &wf)
}
