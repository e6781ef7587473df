package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListCatalogs handles GET /v1/catalogs.
func (h *Handler) ListCatalogs(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.ListCatalogs(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"catalogs": names})
}

// ListSchemas handles GET /v1/catalogs/{catalog}/schemas.
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.ListSchemas(r.Context(), chi.URLParam(r, "catalog"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"schemas": names})
}

// ListTables handles GET /v1/catalogs/{catalog}/schemas/{schema}/tables.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.ListTables(r.Context(), chi.URLParam(r, "catalog"), chi.URLParam(r, "schema"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tables": names})
}

// ListColumns handles GET /v1/catalogs/{catalog}/schemas/{schema}/tables/{table}/columns.
func (h *Handler) ListColumns(w http.ResponseWriter, r *http.Request) {
	names, err := h.catalog.ListColumns(r.Context(),
		chi.URLParam(r, "catalog"), chi.URLParam(r, "schema"), chi.URLParam(r, "table"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"columns": names})
}
