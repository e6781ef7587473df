package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"duck-loader/internal/domain"
)

// multipartOverhead is the allowance for multipart framing on top of the
// upload size limit.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	Name      string `json:"name"`
	Key       string `json:"key"`
	SourceURI string `json:"source_uri"`
	Size      int64  `json:"size"`
}

// Upload handles POST /v1/uploads. The multipart "file" part is streamed to
// the volume without buffering the whole body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(w, r, domain.ErrValidation("expected a multipart/form-data body: %v", err))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			h.writeError(w, r, domain.ErrValidation("multipart field %q is required", "file"))
			return
		}
		if err != nil {
			h.writeError(w, r, wrapBodyError(err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		uploaded, err := h.ingestion.Upload(r.Context(), part.FileName(), part)
		_ = part.Close()
		if err != nil {
			h.writeError(w, r, wrapBodyError(err))
			return
		}
		writeJSON(w, http.StatusCreated, uploadResponse{
			Name:      uploaded.Name,
			Key:       uploaded.Key,
			SourceURI: uploaded.RemoteURI,
			Size:      uploaded.Size,
		})
		return
	}
}

// previewRequest names the file by the key returned from POST /v1/uploads.
type previewRequest struct {
	SourceKey string `json:"source_key"`
	Limit     int    `json:"limit"`
}

type previewResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Limit   int        `json:"limit"`
}

// Preview handles POST /v1/uploads/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ingestion.Preview(r.Context(), req.SourceKey, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Columns: res.Columns, Rows: res.Rows, Limit: res.Limit})
}

type writeRequest struct {
	Mode      string  `json:"mode"`
	Catalog   string  `json:"catalog"`
	Schema    string  `json:"schema"`
	Table     string  `json:"table"`
	SourceKey string  `json:"source_key"`
	MergeKey  *string `json:"merge_key,omitempty"`
}

type tableRef struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
	Table   string `json:"table"`
}

type writeResponse struct {
	Success      bool     `json:"success"`
	Header       string   `json:"header"`
	Message      string   `json:"message"`
	Mode         string   `json:"mode"`
	Target       tableRef `json:"target"`
	State        string   `json:"state"`
	Stage        string   `json:"stage,omitempty"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
	StagingView  string   `json:"staging_view,omitempty"`
	Warnings     []string `json:"warnings"`
	DurationMs   int64    `json:"duration_ms"`
}

func writeResultToAPI(res *domain.WriteResult) writeResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return writeResponse{
		Success:      res.Success,
		Header:       res.Header,
		Message:      res.Message,
		Mode:         string(res.Mode),
		Target:       tableRef{Catalog: res.Target.Catalog, Schema: res.Target.Schema, Table: res.Target.Table},
		State:        string(res.State),
		Stage:        res.Stage,
		ErrorKind:    res.ErrorKind(),
		RowsAffected: res.RowsAffected,
		StagingView:  res.StagingView,
		Warnings:     warnings,
		DurationMs:   res.Duration.Milliseconds(),
	}
}

// Write handles POST /v1/writes. A failed write still returns the complete
// result body, under the status mapped from its error kind.
func (h *Handler) Write(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res := h.ingestion.Write(r.Context(), domain.WriteRequest{
		Mode:      domain.WriteMode(req.Mode),
		Target:    domain.TableRef{Catalog: req.Catalog, Schema: req.Schema, Table: req.Table},
		SourceKey: req.SourceKey,
		MergeKey:  req.MergeKey,
	})

	status := http.StatusOK
	if !res.Success {
		status = httpStatusFromDomainError(res.Err)
	}
	writeJSON(w, status, writeResultToAPI(res))
}

type writeRecord struct {
	ID            int64    `json:"id"`
	RequestID     string   `json:"request_id,omitempty"`
	PrincipalName string   `json:"principal_name"`
	Mode          string   `json:"mode"`
	Target        tableRef `json:"target"`
	SourceURI     string   `json:"source_uri"`
	MergeKey      *string  `json:"merge_key,omitempty"`
	Success       bool     `json:"success"`
	ErrorKind     string   `json:"error_kind,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	Message       string   `json:"message"`
	RowsAffected  int64    `json:"rows_affected"`
	StagingView   string   `json:"staging_view,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	CreatedAt     string   `json:"created_at"`
}

type historyResponse struct {
	Records []writeRecord `json:"records"`
	Total   int64         `json:"total"`
}

// ListWrites handles GET /v1/writes.
func (h *Handler) ListWrites(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, total, err := h.ingestion.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := historyResponse{Records: make([]writeRecord, 0, len(recs)), Total: total}
	for _, rec := range recs {
		out.Records = append(out.Records, writeRecord{
			ID:            rec.ID,
			RequestID:     rec.RequestID,
			PrincipalName: rec.PrincipalName,
			Mode:          string(rec.Mode),
			Target:        tableRef{Catalog: rec.Target.Catalog, Schema: rec.Target.Schema, Table: rec.Target.Table},
			SourceURI:     rec.SourceURI,
			MergeKey:      rec.MergeKey,
			Success:       rec.Success,
			ErrorKind:     rec.ErrorKind,
			Stage:         rec.Stage,
			Message:       rec.Message,
			RowsAffected:  rec.RowsAffected,
			StagingView:   rec.StagingView,
			DurationMs:    rec.DurationMs,
			CreatedAt:     rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func historyFilterFromQuery(r *http.Request) (domain.HistoryFilter, error) {
	q := r.URL.Query()
	var f domain.HistoryFilter
	optional := func(key string) *string {
		if v := q.Get(key); v != "" {
			return &v
		}
		return nil
	}
	f.PrincipalName = optional("principal")
	f.Catalog = optional("catalog")
	f.Schema = optional("schema")
	f.Table = optional("table")

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, domain.ErrValidation("success must be true or false, got %q", v)
		}
		f.Success = &b
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.ErrValidation("%s must be a non-negative integer, got %q", key, v)
		}
		*dst = n
	}
	return f, nil
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// wrapBodyError keeps a body-size violation recognisable after it passes
// through the service layer.
func wrapBodyError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return fmt.Errorf("upload exceeds the %d byte limit: %w", maxBytes.Limit, err)
	}
	return err
}
