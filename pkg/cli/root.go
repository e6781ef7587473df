// Package cli implements the duckload command line. It runs the ingestion
// engine in-process against a DuckDB database file and a local or cloud
// volume.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"duck-loader/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions holds the resolved persistent flags.
type globalOptions struct {
	config    string
	duckdb    string
	volume    string
	historyDB string
	principal string
	output    string
	profile   string
	verbose   bool
}

// Execute runs the CLI.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		switch {
		case output == "json" && isWriteFailure(err):
			// The failed result has already been printed.
		case output == "json":
			errObj := map[string]interface{}{"error": err.Error()}
			if kind := domain.ErrorKind(err); kind != domain.KindInternal {
				errObj["kind"] = kind
			}
			_ = PrintJSON(stdout, errObj)
		default:
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "duckload",
		Short:         "Load CSV files into DuckDB tables under their declared schema",
		Long:          "Upload CSV files to a volume and write them into existing DuckDB tables by overwrite, append, or keyed merge.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				// The profile file is optional.
				cfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
			}
			p := cfg.ActiveProfile(opts.profile)

			// Precedence: flag > env > profile > default.
			resolve := func(flag, env string, dst *string, fromProfile string) {
				if cmd.Flags().Changed(flag) {
					return
				}
				if v := os.Getenv(env); v != "" {
					*dst = v
				} else if fromProfile != "" {
					*dst = fromProfile
				}
			}
			resolve("config", "DUCKLOAD_CONFIG", &opts.config, p.Config)
			resolve("duckdb", "DUCKLOAD_DUCKDB", &opts.duckdb, p.DuckDB)
			resolve("volume", "DUCKLOAD_VOLUME", &opts.volume, p.Volume)
			resolve("history-db", "DUCKLOAD_HISTORY_DB", &opts.historyDB, p.HistoryDB)
			resolve("principal", "DUCKLOAD_PRINCIPAL", &opts.principal, p.Principal)
			resolve("output", "DUCKLOAD_OUTPUT", &opts.output, p.Output)

			if opts.principal == "" {
				opts.principal = os.Getenv("USER")
			}
			return validateOutputFormat(opts.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.config, "config", "", "server-style YAML config file (volume backend, credentials)")
	pf.StringVar(&opts.duckdb, "duckdb", "", "DuckDB database file (overrides DUCKDB_PATH)")
	pf.StringVar(&opts.volume, "volume", "", "volume path (overrides VOLUME_PATH)")
	pf.StringVar(&opts.historyDB, "history-db", "", "write history SQLite file (overrides HISTORY_DB_PATH)")
	pf.StringVar(&opts.principal, "principal", "", "principal recorded in write history (default $USER)")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine activity to stderr")

	rootCmd.AddCommand(newCatalogsCmd(opts))
	rootCmd.AddCommand(newSchemasCmd(opts))
	rootCmd.AddCommand(newTablesCmd(opts))
	rootCmd.AddCommand(newColumnsCmd(opts))
	rootCmd.AddCommand(newPutCmd(opts))
	rootCmd.AddCommand(newPreviewCmd(opts))
	rootCmd.AddCommand(newWriteCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "duckload version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
