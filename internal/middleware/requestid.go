package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"duck-loader/internal/domain"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// validRequestID bounds caller-supplied ids so they are safe to log.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestID assigns a request id to each request. A well-formed incoming
// X-Request-ID header is reused; anything else is replaced by a new UUID. The
// id is echoed on the response and stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.WithRequestID(r.Context(), id)))
	})
}

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(r *http.Request) string {
	return domain.RequestIDFromContext(r.Context())
}
