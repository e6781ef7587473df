// Package ingestion loads uploaded CSV files into existing warehouse tables.
// A file is exposed as a temporary staging view, every column is cast to the
// target's declared type, and the rows are written by overwrite, append, or
// keyed merge.
package ingestion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"duck-loader/internal/domain"
)

// IngestionService ties file transfer, dispatch, preview, and write history
// together for the API and CLI.
//
//nolint:revive // Name chosen for clarity across package boundaries
type IngestionService struct {
	dispatcher   *Dispatcher
	previewer    *Previewer
	transfer     domain.FileTransfer
	history      domain.WriteHistoryRepository // may be nil
	uploadPrefix string
	maxBytes     int64
	logger       *slog.Logger
}

// Options configures an IngestionService.
type Options struct {
	// UploadPrefix is the volume path under which uploads are stored.
	UploadPrefix string
	// MaxUploadBytes rejects larger uploads. Zero disables the limit.
	MaxUploadBytes int64
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(
	dispatcher *Dispatcher,
	previewer *Previewer,
	transfer domain.FileTransfer,
	history domain.WriteHistoryRepository,
	opts Options,
	logger *slog.Logger,
) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestionService{
		dispatcher:   dispatcher,
		previewer:    previewer,
		transfer:     transfer,
		history:      history,
		uploadPrefix: strings.Trim(path.Clean("/"+opts.UploadPrefix), "/"),
		maxBytes:     opts.MaxUploadBytes,
		logger:       logger.With("component", "ingestion"),
	}
}

// Upload stores r on the volume under a unique name derived from filename and
// returns the URI the warehouse reads it from.
func (s *IngestionService) Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadedFile, error) {
	if s.transfer == nil {
		return nil, domain.ErrValidation("upload not available: no volume configured")
	}
	name := sanitizeFilename(filename)
	if name == "" {
		return nil, domain.ErrValidation("filename is required")
	}
	key := s.remotePath(name)

	cr := &countingReader{r: r, limit: s.maxBytes}
	uri, err := s.transfer.PutReader(ctx, cr, key)
	if cr.exceeded {
		return nil, domain.ErrValidation("upload exceeds the %d byte limit", s.maxBytes)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("file uploaded",
		"principal", domain.PrincipalName(ctx),
		"request_id", domain.RequestIDFromContext(ctx),
		"key", key,
		"uri", uri,
		"bytes", cr.n,
	)
	return &domain.UploadedFile{Name: name, Key: key, RemoteURI: uri, Size: cr.n}, nil
}

// UploadLocal copies a file from the local filesystem to the volume.
func (s *IngestionService) UploadLocal(ctx context.Context, localPath string) (*domain.UploadedFile, error) {
	if s.transfer == nil {
		return nil, domain.ErrValidation("upload not available: no volume configured")
	}
	name := sanitizeFilename(path.Base(strings.ReplaceAll(localPath, "\\", "/")))
	if name == "" {
		return nil, domain.ErrValidation("filename is required")
	}
	key := s.remotePath(name)
	uri, err := s.transfer.Put(ctx, localPath, key)
	if err != nil {
		return nil, err
	}
	s.logger.Info("file uploaded", "principal", domain.PrincipalName(ctx), "key", key, "uri", uri, "local_path", localPath)
	return &domain.UploadedFile{Name: name, Key: key, RemoteURI: uri}, nil
}

// Write resolves the request's source key against the volume, dispatches
// the write, and records the outcome in the write history. A key that does not
// name a file on the volume fails validation before anything runs. A history
// failure is logged and reported as a warning; the write's own outcome is
// unchanged.
func (s *IngestionService) Write(ctx context.Context, req domain.WriteRequest) *domain.WriteResult {
	op := domain.WriteOperation{
		Mode:      req.Mode,
		Target:    req.Target,
		SourceURI: req.SourceKey,
		MergeKey:  req.MergeKey,
	}
	var res *domain.WriteResult
	if uri, err := s.resolve(req.SourceKey); err != nil {
		res = &domain.WriteResult{Mode: req.Mode, Target: req.Target, RowsAffected: -1}
		res.Fail("validate", err)
	} else {
		op.SourceURI = uri
		res = s.dispatcher.Dispatch(ctx, op)
	}

	principal := domain.PrincipalName(ctx)
	requestID := domain.RequestIDFromContext(ctx)
	s.logger.Info("write dispatched",
		"principal", principal,
		"request_id", requestID,
		"mode", op.Mode,
		"target", op.Target.String(),
		"source", op.SourceURI,
		"success", res.Success,
		"kind", res.ErrorKind(),
	)

	if s.history != nil {
		rec := domain.NewWriteRecord(principal, requestID, op, res)
		if err := s.history.Insert(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn("write history insert failed", "error", err)
			res.Warnings = append(res.Warnings, "write history not recorded: "+err.Error())
		}
	}
	return res
}

// Preview returns the header and first limit rows of the uploaded file named
// by key.
func (s *IngestionService) Preview(ctx context.Context, key string, limit int) (*domain.PreviewResult, error) {
	uri, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return s.previewer.Preview(ctx, uri, limit)
}

// History lists recorded writes, newest first.
func (s *IngestionService) History(ctx context.Context, filter domain.HistoryFilter) ([]domain.WriteRecord, int64, error) {
	if s.history == nil {
		return []domain.WriteRecord{}, 0, nil
	}
	return s.history.List(ctx, filter)
}

// resolve maps a caller-supplied upload key to the URI the warehouse reads.
// Only keys under the upload prefix of the configured volume are accepted.
func (s *IngestionService) resolve(key string) (string, error) {
	if s.transfer == nil {
		return "", domain.ErrValidation("no volume configured; uploaded files cannot be read")
	}
	if strings.TrimSpace(key) == "" {
		return "", domain.ErrValidation("no uploaded file found; upload a CSV first")
	}
	uri, err := s.transfer.Resolve(key)
	if err != nil {
		return "", err
	}
	if s.uploadPrefix != "" {
		clean := strings.Trim(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
		if !strings.HasPrefix(clean, s.uploadPrefix+"/") {
			return "", domain.ErrValidation("source key %q is not under the upload area %q", key, s.uploadPrefix)
		}
	}
	return uri, nil
}

func (s *IngestionService) remotePath(name string) string {
	return path.Join(s.uploadPrefix, uuid.New().String()+"_"+name)
}

// sanitizeFilename strips path separators and keeps only safe characters.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || strings.Trim(name, "_.") == "" {
		return ""
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name
}

// countingReader counts bytes read and stops once limit is exceeded.
type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.exceeded = true
		return n, errUploadTooLarge
	}
	return n, err
}

var errUploadTooLarge = errors.New("upload too large")
