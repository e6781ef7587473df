package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

// Authenticator resolves the calling principal from a Bearer JWT or a static
// API key and stores it in the request context.
type Authenticator struct {
	validator JWTValidator
	nameClaim string
	keyHeader string
	keys      map[[sha256.Size]byte]string // sha256(key) -> principal
	disabled  bool
}

// NewAuthenticator builds an Authenticator from config. OIDC takes precedence
// over the HS256 secret. With no method configured every request runs as the
// anonymous principal and a warning is logged.
func NewAuthenticator(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		nameClaim: cfg.NameClaim,
		keyHeader: cfg.APIKeyHeader,
		keys:      make(map[[sha256.Size]byte]string, len(cfg.APIKeys)),
	}
	if a.nameClaim == "" {
		a.nameClaim = "email"
	}
	if a.keyHeader == "" {
		a.keyHeader = "X-API-Key"
	}
	if !cfg.Enabled() {
		logger.Warn("authentication disabled; all requests run as the anonymous principal")
		a.disabled = true
		return a, nil
	}

	switch {
	case cfg.IssuerURL != "":
		v, err := NewOIDCValidator(ctx, cfg.IssuerURL, cfg.Audience)
		if err != nil {
			return nil, err
		}
		a.validator = v
	case cfg.JWTSecret != "":
		v, err := NewHS256Validator(cfg.JWTSecret, cfg.Audience)
		if err != nil {
			return nil, err
		}
		a.validator = v
	}
	for key, principal := range cfg.APIKeys {
		a.keys[sha256.Sum256([]byte(key))] = principal
	}
	return a, nil
}

// NewAuthenticatorWithValidator builds an Authenticator around an existing
// validator and API key map.
func NewAuthenticatorWithValidator(v JWTValidator, apiKeys map[string]string) *Authenticator {
	a := &Authenticator{
		validator: v,
		nameClaim: "email",
		keyHeader: "X-API-Key",
		keys:      make(map[[sha256.Size]byte]string, len(apiKeys)),
	}
	for key, principal := range apiKeys {
		a.keys[sha256.Sum256([]byte(key))] = principal
	}
	return a
}

// Middleware tries the Bearer token first, then the API key header, and
// answers 401 when neither yields a principal.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			ctx := domain.WithPrincipal(r.Context(), domain.ContextPrincipal{
				Name: domain.AnonymousPrincipal,
				Type: domain.PrincipalTypeAnonymous,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if p, ok := a.fromBearer(r); ok {
			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
			return
		}
		if p, ok := a.fromAPIKey(r); ok {
			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
			return
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized: provide a valid JWT Bearer token or API key")
	})
}

func (a *Authenticator) fromBearer(r *http.Request) (domain.ContextPrincipal, bool) {
	auth := r.Header.Get("Authorization")
	if a.validator == nil || !strings.HasPrefix(auth, "Bearer ") {
		return domain.ContextPrincipal{}, false
	}
	claims, err := a.validator.Validate(r.Context(), strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return domain.ContextPrincipal{}, false
	}
	name := claims.Claim(a.nameClaim)
	if name == "" {
		name = claims.Subject
	}
	if name == "" {
		return domain.ContextPrincipal{}, false
	}
	return domain.ContextPrincipal{Name: name, Type: domain.PrincipalTypeUser}, true
}

func (a *Authenticator) fromAPIKey(r *http.Request) (domain.ContextPrincipal, bool) {
	key := r.Header.Get(a.keyHeader)
	if key == "" || len(a.keys) == 0 {
		return domain.ContextPrincipal{}, false
	}
	sum := sha256.Sum256([]byte(key))
	for hash, principal := range a.keys {
		if subtle.ConstantTimeCompare(hash[:], sum[:]) == 1 {
			return domain.ContextPrincipal{Name: principal, Type: domain.PrincipalTypeAPIKey}, true
		}
	}
	return domain.ContextPrincipal{}, false
}
