package ingestion

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/google/uuid"

	"duck-loader/internal/ddl"
	"duck-loader/internal/domain"
)

// Staging view name prefixes. Merge staging lives in its own namespace.
const (
	StagingPrefix = "tmp_staging"
	MergePrefix   = "tmp_merge"
)

// StagingName returns prefix followed by a random 12-hex-character suffix.
func StagingName(prefix string) string {
	id := uuid.New()
	// Bytes 0-5 of a v4 UUID are fully random.
	return prefix + "_" + hex.EncodeToString(id[:6])
}

// StagingView is a session-scoped view exposing an uploaded file as rows of
// text columns named by the file's header.
type StagingView struct {
	Name      string
	SourceURI string
}

// StagingManager creates and drops staging views.
type StagingManager struct {
	logger *slog.Logger
}

// NewStagingManager creates a new StagingManager.
func NewStagingManager(logger *slog.Logger) *StagingManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StagingManager{logger: logger}
}

// Create defines the view name over sourceURI on exec's session.
func (m *StagingManager) Create(ctx context.Context, exec Executor, name, sourceURI string) (*StagingView, error) {
	stmt, err := ddl.CreateStagingView(name, sourceURI, ddl.FormatCSV, true)
	if err != nil {
		return nil, domain.ErrValidation("%v", err)
	}
	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		return nil, &domain.StagingViewError{View: name, Op: "create", Cause: err}
	}
	m.logger.Debug("staging view created", "view", name, "source", sourceURI)
	return &StagingView{Name: name, SourceURI: sourceURI}, nil
}

// Drop removes the view. Dropping a view that no longer exists succeeds.
func (m *StagingManager) Drop(ctx context.Context, exec Executor, view *StagingView) error {
	stmt, err := ddl.DropView(view.Name)
	if err != nil {
		return &domain.StagingViewError{View: view.Name, Op: "drop", Cause: err}
	}
	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		return &domain.StagingViewError{View: view.Name, Op: "drop", Cause: err}
	}
	m.logger.Debug("staging view dropped", "view", view.Name)
	return nil
}

// WithView creates the view, runs fn, and drops the view on every exit path,
// including a panic in fn and a cancelled ctx. err is the create or fn error;
// dropErr reports a failed drop separately so it never masks err.
func (m *StagingManager) WithView(
	ctx context.Context,
	exec Executor,
	name, sourceURI string,
	fn func(view *StagingView) error,
) (dropErr error, err error) {
	view, err := m.Create(ctx, exec, name, sourceURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		dropErr = m.Drop(context.WithoutCancel(ctx), exec, view)
	}()
	return nil, fn(view)
}
