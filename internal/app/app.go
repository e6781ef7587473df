// Package app wires configuration, the DuckDB warehouse, the volume, the
// write history store, and the services behind the HTTP API.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"duck-loader/internal/api"
	"duck-loader/internal/config"
	"duck-loader/internal/db/repository"
	"duck-loader/internal/domain"
	"duck-loader/internal/engine"
	"duck-loader/internal/middleware"
	"duck-loader/internal/service/catalog"
	"duck-loader/internal/service/ingestion"
	"duck-loader/internal/service/storage"
)

// VolumeSecretName is the DuckDB secret that lets the warehouse read the
// configured cloud volume.
const VolumeSecretName = "duckload_volume"

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg     *config.Config
	DuckDB  *sql.DB
	WriteDB *sql.DB // write history; nil disables history
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// Services groups the services the API handler and CLI need.
type Services struct {
	Catalog   *catalog.MetadataService
	Ingestion *ingestion.IngestionService
}

// App holds the fully-wired application.
type App struct {
	Services Services
	Transfer domain.FileTransfer
	cfg      *config.Config
	duckDB   *sql.DB
	logger   *slog.Logger
}

// New wires repositories, services, and the volume transfer from deps.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transfer, err := storage.NewTransferFromConfig(ctx, cfg.Volume)
	if err != nil {
		return nil, fmt.Errorf("volume: %w", err)
	}

	var history domain.WriteHistoryRepository
	if deps.WriteDB != nil {
		history = repository.NewWriteHistoryRepo(deps.WriteDB, deps.ReadDB)
	}

	dispatcher := ingestion.NewDispatcher(deps.DuckDB, ingestion.DispatcherConfig{
		OverwriteAtomic: cfg.OverwriteAtomic,
	}, logger)

	ingestionSvc := ingestion.NewIngestionService(
		dispatcher,
		ingestion.NewPreviewer(deps.DuckDB),
		transfer,
		history,
		ingestion.Options{
			UploadPrefix:   UploadPrefix(cfg.Volume),
			MaxUploadBytes: cfg.MaxUploadBytes,
		},
		logger,
	)

	return &App{
		Services: Services{
			Catalog:   catalog.NewMetadataService(deps.DuckDB),
			Ingestion: ingestionSvc,
		},
		Transfer: transfer,
		cfg:      cfg,
		duckDB:   deps.DuckDB,
		logger:   logger,
	}, nil
}

// UploadPrefix returns the volume path uploads are stored under. A local
// volume's root already is the upload directory.
func UploadPrefix(v config.VolumeConfig) string {
	if v.Backend == config.BackendLocal || v.Backend == "" {
		return ""
	}
	return v.Path
}

// Router builds the HTTP handler. Background middleware work stops when ctx
// is cancelled.
func (a *App) Router(ctx context.Context) (http.Handler, error) {
	auth, err := middleware.NewAuthenticator(ctx, a.cfg.Auth, a.logger)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	h := api.NewHandler(a.Services.Catalog, a.Services.Ingestion, api.HandlerOptions{
		Health:         a.duckDB,
		MaxUploadBytes: a.cfg.MaxUploadBytes,
	}, a.logger)
	return api.NewRouter(ctx, h, api.RouterConfig{
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
		Auth:   auth,
		Logger: a.logger,
	}), nil
}

// Close releases the volume client when it holds one.
func (a *App) Close() error {
	if c, ok := a.Transfer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PrepareEngine loads the extensions the volume backend needs, registers the
// secret that lets DuckDB read uploaded files, and attaches extra catalogs.
func PrepareEngine(ctx context.Context, db *sql.DB, cfg *config.Config, logger *slog.Logger) error {
	if err := engine.InstallExtensions(ctx, db, engine.ExtensionsFor(cfg.Volume.Backend)...); err != nil {
		return err
	}
	if err := ConfigureVolumeSecret(ctx, engine.NewSecretManager(db), cfg.Volume); err != nil {
		return err
	}
	attachments, err := engine.ParseAttachments(cfg.Attach)
	if err != nil {
		return err
	}
	return engine.AttachDatabases(ctx, db, logger, attachments)
}

// ConfigureVolumeSecret creates the DuckDB secret for a cloud volume. Local
// volumes need none.
func ConfigureVolumeSecret(ctx context.Context, secrets *engine.SecretManager, v config.VolumeConfig) error {
	switch v.Backend {
	case config.BackendS3:
		return secrets.CreateS3Secret(ctx, VolumeSecretName,
			v.S3.KeyID, v.S3.Secret, v.S3.Endpoint, v.S3.Region, v.S3.URLStyle)
	case config.BackendAzure:
		return secrets.CreateAzureSecret(ctx, VolumeSecretName,
			v.Azure.AccountName, v.Azure.AccountKey, v.Azure.ConnectionString)
	case config.BackendGCS:
		if v.GCS.HMACKeyID == "" {
			return nil
		}
		return secrets.CreateGCSSecret(ctx, VolumeSecretName, v.GCS.HMACKeyID, v.GCS.HMACSecret)
	default:
		return nil
	}
}
