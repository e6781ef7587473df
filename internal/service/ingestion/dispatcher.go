package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// DispatcherConfig tunes write dispatch.
type DispatcherConfig struct {
	// OverwriteAtomic runs TRUNCATE and INSERT in one transaction so a failed
	// insert leaves the previous contents in place. When false the table is
	// truncated first and a failed insert leaves it empty.
	OverwriteAtomic bool
}

// Dispatcher routes a write operation to overwrite, append, or merge and
// reports the outcome as a WriteResult. Operations are independent: any
// number may run concurrently, each on its own session.
type Dispatcher struct {
	conns   Connector
	schema  SchemaAligner
	staging *StagingManager
	merge   MergeEngine
	cfg     DispatcherConfig
	logger  *slog.Logger

	// wrap decorates every session executor; tests use it to inject faults.
	wrap func(Executor) Executor
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(conns Connector, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatcher")
	return &Dispatcher{
		conns:   conns,
		staging: NewStagingManager(logger),
		cfg:     cfg,
		logger:  logger,
	}
}

func (d *Dispatcher) executor(e Executor) Executor {
	if d.wrap != nil {
		return d.wrap(e)
	}
	return e
}

// Dispatch performs op and never returns an error: every failure, including a
// panic below it, is captured in the result with its kind and failing stage.
// No retries are attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, op domain.WriteOperation) *domain.WriteResult {
	start := time.Now()
	res := &domain.WriteResult{
		Mode:         op.Mode,
		Target:       op.Target,
		State:        domain.StateIdle,
		RowsAffected: -1,
	}
	stage := "validate"
	defer func() {
		res.Duration = time.Since(start)
		d.logResult(op, res)
	}()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("write panicked", "stage", stage, "panic", r)
			res.Fail(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	res.State = domain.StateValidating
	if err := op.Validate(); err != nil {
		res.Fail("validate", err)
		return res
	}
	if _, err := ddl.QualifiedName(op.Target.Catalog, op.Target.Schema, op.Target.Table); err != nil {
		res.Fail("validate", domain.ErrValidation("%v", err))
		return res
	}

	stage = "connect"
	conn, err := d.conns.Conn(ctx)
	if err != nil {
		res.Fail(stage, fmt.Errorf("acquire warehouse session: %w", err))
		return res
	}
	defer conn.Close()
	exec := d.executor(conn)

	stage = "schema lookup"
	schema, err := d.schema.GetSchema(ctx, exec, op.Target)
	if err != nil {
		res.Fail(stage, err)
		return res
	}
	var mergeKey string
	if op.Mode == domain.WriteModeMerge {
		col, ok := schema.Lookup(*op.MergeKey)
		if !ok {
			res.Fail("validate", &domain.MergeKeyError{Key: *op.MergeKey, Table: op.Target.String()})
			return res
		}
		mergeKey = col.Name
	}
	stage = "cast projection"
	projection, err := BuildCastProjection(schema, SourceAlias)
	if err != nil {
		res.Fail(stage, err)
		return res
	}

	prefix := StagingPrefix
	switch op.Mode {
	case domain.WriteModeOverwrite:
		res.State = domain.StateOverwriting
	case domain.WriteModeAppend:
		res.State = domain.StateAppending
	case domain.WriteModeMerge:
		res.State = domain.StateMerging
		prefix = MergePrefix
	}
	res.StagingView = StagingName(prefix)

	var (
		rows      int64
		truncated bool
	)
	stage = "create staging view"
	dropErr, err := d.staging.WithView(ctx, exec, res.StagingView, op.SourceURI, func(view *StagingView) error {
		var err error
		switch op.Mode {
		case domain.WriteModeOverwrite:
			rows, truncated, err = d.overwrite(ctx, conn, op.Target, schema, projection, view, &stage)
		case domain.WriteModeAppend:
			stage = "insert"
			rows, err = d.insert(ctx, exec, op.Target, schema, projection, view)
		case domain.WriteModeMerge:
			stage = "merge"
			rows, err = d.merge.Merge(ctx, exec, op.Target, schema, projection, view, mergeKey)
		}
		return err
	})
	if dropErr != nil {
		d.logger.Warn("staging view cleanup failed", "view", res.StagingView, "error", dropErr)
		res.Warnings = append(res.Warnings, dropErr.Error())
	}
	if err != nil {
		res.Fail(stage, err)
		if truncated {
			res.Message += fmt.Sprintf("; target table %s was truncated and is now empty", op.Target)
		}
		return res
	}

	res.RowsAffected = rows
	switch op.Mode {
	case domain.WriteModeOverwrite:
		res.Succeed("Replaced the contents of %s with %d rows", op.Target, rows)
	case domain.WriteModeAppend:
		res.Succeed("Appended %d rows to %s", rows, op.Target)
	case domain.WriteModeMerge:
		res.Succeed("Merged %d rows into %s on key %q", rows, op.Target, mergeKey)
	}
	return res
}

// insert appends the cast projection of view to target.
func (d *Dispatcher) insert(
	ctx context.Context,
	exec Executor,
	target domain.TableRef,
	schema domain.SchemaMap,
	projection []string,
	view *StagingView,
) (int64, error) {
	name, err := ddl.QualifiedName(target.Catalog, target.Schema, target.Table)
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}
	stmt, err := ddl.InsertSelect(name, schema.Names(), projection, view.Name, SourceAlias)
	if err != nil {
		return 0, domain.ErrValidation("%v", err)
	}
	res, err := exec.ExecContext(ctx, stmt)
	if err != nil {
		return 0, &domain.CastError{Table: target.String(), Stage: "insert", Cause: err}
	}
	return rowsAffected(res), nil
}

// overwrite truncates target and inserts the staged rows. truncated reports
// whether the table was left empty by a failure after the truncate committed.
func (d *Dispatcher) overwrite(
	ctx context.Context,
	conn *sql.Conn,
	target domain.TableRef,
	schema domain.SchemaMap,
	projection []string,
	view *StagingView,
	stage *string,
) (rows int64, truncated bool, err error) {
	stmt, err := ddl.TruncateTable(target.Catalog, target.Schema, target.Table)
	if err != nil {
		return 0, false, domain.ErrValidation("%v", err)
	}

	if !d.cfg.OverwriteAtomic {
		exec := d.executor(conn)
		*stage = "truncate"
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return 0, false, fmt.Errorf("truncate %s: %w", target, err)
		}
		*stage = "insert"
		rows, err = d.insert(ctx, exec, target, schema, projection, view)
		return rows, err != nil, err
	}

	*stage = "begin transaction"
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	exec := d.executor(tx)
	*stage = "truncate"
	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		return 0, false, fmt.Errorf("truncate %s: %w", target, err)
	}
	*stage = "insert"
	if rows, err = d.insert(ctx, exec, target, schema, projection, view); err != nil {
		return 0, false, err
	}
	*stage = "commit"
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit overwrite of %s: %w", target, err)
	}
	return rows, false, nil
}

func (d *Dispatcher) logResult(op domain.WriteOperation, res *domain.WriteResult) {
	attrs := []any{
		"mode", op.Mode,
		"target", op.Target.String(),
		"state", res.State,
		"staging_view", res.StagingView,
		"duration", res.Duration,
	}
	if res.Success {
		d.logger.Info("write completed", append(attrs, "rows", res.RowsAffected)...)
		return
	}
	d.logger.Warn("write failed", append(attrs, "stage", res.Stage, "kind", res.ErrorKind(), "error", res.Err)...)
}
