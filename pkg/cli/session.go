package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"duck-loader/internal/app"
	"duck-loader/internal/config"
	internaldb "duck-loader/internal/db"
	"duck-loader/internal/domain"
	"duck-loader/internal/engine"
)

// session is one in-process engine for the duration of a command.
type session struct {
	app     *app.App
	duckDB  *sql.DB
	writeDB *sql.DB
	readDB  *sql.DB
}

// openSession loads config, applies the CLI overrides, and wires the engine,
// volume, and history store.
func openSession(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*session, error) {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.duckdb != "" {
		cfg.DuckDBPath = opts.duckdb
	}
	if opts.volume != "" {
		cfg.Volume.Path = opts.volume
	}
	if opts.historyDB != "" {
		cfg.HistoryDBPath = opts.historyDB
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
		for _, w := range cfg.Warnings {
			logger.Warn(w)
		}
	}

	s := &session{}
	s.duckDB, err = engine.Open(ctx, cfg.DuckDBPath)
	if err != nil {
		return nil, err
	}
	if err := app.PrepareEngine(ctx, s.duckDB, cfg, logger); err != nil {
		s.Close()
		return nil, fmt.Errorf("prepare engine: %w", err)
	}

	if cfg.HistoryDBPath != "" {
		s.writeDB, s.readDB, err = internaldb.OpenSQLitePair(cfg.HistoryDBPath, 2)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open history store: %w", err)
		}
		if err := internaldb.RunMigrations(s.writeDB); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate history store: %w", err)
		}
	}

	s.app, err = app.New(ctx, app.Deps{
		Cfg:     cfg,
		DuckDB:  s.duckDB,
		WriteDB: s.writeDB,
		ReadDB:  s.readDB,
		Logger:  logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases everything the session opened.
func (s *session) Close() {
	if s.app != nil {
		_ = s.app.Close()
	}
	for _, db := range []*sql.DB{s.writeDB, s.readDB, s.duckDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}

// withSession runs fn against a fresh session carrying the CLI principal.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := domain.WithPrincipal(cmd.Context(), domain.ContextPrincipal{
		Name: opts.principal,
		Type: domain.PrincipalTypeUser,
	})
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
