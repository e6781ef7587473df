// Package api exposes metadata browsing, uploads, previews, schema-aligned
// writes, and write history over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"duck-loader/internal/domain"
)

// IngestionService is the subset of ingestion.IngestionService the handlers use.
type IngestionService interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*domain.UploadedFile, error)
	Preview(ctx context.Context, key string, limit int) (*domain.PreviewResult, error)
	Write(ctx context.Context, req domain.WriteRequest) *domain.WriteResult
	History(ctx context.Context, filter domain.HistoryFilter) ([]domain.WriteRecord, int64, error)
}

// Pinger reports whether the warehouse connection is usable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler implements the /v1 endpoints.
type Handler struct {
	catalog        domain.MetadataCatalog
	ingestion      IngestionService
	health         Pinger // may be nil
	maxUploadBytes int64
	logger         *slog.Logger
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Health is pinged by GET /healthz when set.
	Health Pinger
	// MaxUploadBytes bounds a multipart upload body. Zero disables the bound.
	MaxUploadBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(catalog domain.MetadataCatalog, ingestion IngestionService, opts HandlerOptions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:        catalog,
		ingestion:      ingestion,
		health:         opts.Health,
		maxUploadBytes: opts.MaxUploadBytes,
		logger:         logger.With("component", "api"),
	}
}

// Healthz answers 200 when the warehouse responds to a ping.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
