package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"duck-loader/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch domain.ErrorKind(err) {
	case domain.KindValidation, domain.KindMergeKey:
		return http.StatusBadRequest
	case domain.KindNotFound, domain.KindSchemaLookup:
		return http.StatusNotFound
	case domain.KindAccessDenied:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindCast, domain.KindStagingView:
		return http.StatusUnprocessableEntity
	case domain.KindTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape of every non-write error response.
type errorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status mapped from err. Internal errors are not
// echoed to the caller.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", domain.RequestIDFromContext(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Code: status, Kind: domain.ErrorKind(err), Message: msg})
}
