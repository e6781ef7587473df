package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-loader/internal/config"
	"duck-loader/internal/domain"
)

func principalEcho(got *domain.ContextPrincipal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, _ = domain.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(context.Background(), config.AuthConfig{
		JWTSecret: testSecret,
		APIKeys:   map[string]string{"k-123": "etl-bot"},
	}, nil)
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		want       domain.ContextPrincipal
	}{
		{
			name:       "jwt uses email claim",
			header:     "Authorization",
			value:      "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "u1", "email": "ana@example.com", "exp": exp}),
			wantStatus: http.StatusOK,
			want:       domain.ContextPrincipal{Name: "ana@example.com", Type: domain.PrincipalTypeUser},
		},
		{
			name:       "jwt falls back to subject",
			header:     "Authorization",
			value:      "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "u1", "exp": exp}),
			wantStatus: http.StatusOK,
			want:       domain.ContextPrincipal{Name: "u1", Type: domain.PrincipalTypeUser},
		},
		{
			name:       "api key",
			header:     "X-API-Key",
			value:      "k-123",
			wantStatus: http.StatusOK,
			want:       domain.ContextPrincipal{Name: "etl-bot", Type: domain.PrincipalTypeAPIKey},
		},
		{
			name:       "bad jwt",
			header:     "Authorization",
			value:      "Bearer " + makeToken("wrong", jwt.MapClaims{"sub": "u1", "exp": exp}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown api key",
			header:     "X-API-Key",
			value:      "nope",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no credentials",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.ContextPrincipal
			req := httptest.NewRequest(http.MethodGet, "/v1/catalogs", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			a.Middleware(principalEcho(&got)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.want, got)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "unauthorized")
			}
		})
	}
}

func TestAuthenticator_Disabled(t *testing.T) {
	a, err := NewAuthenticator(context.Background(), config.AuthConfig{}, nil)
	require.NoError(t, err)

	var got domain.ContextPrincipal
	rec := httptest.NewRecorder()
	a.Middleware(principalEcho(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AnonymousPrincipal, got.Name)
	assert.Equal(t, domain.PrincipalTypeAnonymous, got.Type)
}

func TestAuthenticator_OIDC(t *testing.T) {
	p := newOIDCProvider(t)
	a, err := NewAuthenticator(context.Background(), config.AuthConfig{
		IssuerURL: p.srv.URL,
		Audience:  "loader",
		NameClaim: "preferred_username",
	}, nil)
	require.NoError(t, err)

	tok := p.token(t, jwt.MapClaims{
		"iss":                p.srv.URL,
		"sub":                "user-1",
		"aud":                "loader",
		"preferred_username": "ana",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	var got domain.ContextPrincipal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	a.Middleware(principalEcho(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", got.Name)
}

func TestNewAuthenticatorWithValidator(t *testing.T) {
	v, err := NewHS256Validator(testSecret, "")
	require.NoError(t, err)
	a := NewAuthenticatorWithValidator(v, nil)

	var got domain.ContextPrincipal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "anything")
	rec := httptest.NewRecorder()
	a.Middleware(principalEcho(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
