package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duck-loader/internal/middleware"
)

// RouterConfig holds the middleware settings for NewRouter.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig
	// Auth guards /v1. Nil leaves the routes unauthenticated.
	Auth   *middleware.Authenticator
	Logger *slog.Logger
}

// NewRouter mounts h under /v1 behind the standard middleware chain. The
// rate limiter's cleanup stops when ctx is cancelled.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Middleware)
		}

		r.Get("/catalogs", h.ListCatalogs)
		r.Get("/catalogs/{catalog}/schemas", h.ListSchemas)
		r.Get("/catalogs/{catalog}/schemas/{schema}/tables", h.ListTables)
		r.Get("/catalogs/{catalog}/schemas/{schema}/tables/{table}/columns", h.ListColumns)

		r.Post("/uploads", h.Upload)
		r.Post("/uploads/preview", h.Preview)

		r.Post("/writes", h.Write)
		r.Get("/writes", h.ListWrites)
	})
	return r
}
