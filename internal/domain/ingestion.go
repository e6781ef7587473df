package domain

import (
	"fmt"
	"strings"
	"time"
)

// TableRef identifies a warehouse-managed table by its three-part name.
type TableRef struct {
	Catalog string
	Schema  string
	Table   string
}

// String returns the dotted catalog.schema.table form used in messages.
func (r TableRef) String() string {
	return r.Catalog + "." + r.Schema + "." + r.Table
}

// ParseTableRef splits a dotted "catalog.schema.table" name.
func ParseTableRef(name string) (TableRef, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 {
		return TableRef{}, ErrValidation("table %q must be qualified as catalog.schema.table", name)
	}
	return TableRef{Catalog: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

// Column is one declared column of a target table.
type Column struct {
	Name string
	Type string
}

// SchemaMap is the ordered column-name-to-type mapping of a target table as it
// was declared at the time of the lookup. It is never cached across operations.
type SchemaMap []Column

// Names returns the column names in table order.
func (m SchemaMap) Names() []string {
	names := make([]string, len(m))
	for i, c := range m {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the column named name, if present. Names match
// case-insensitively, as warehouse identifiers do; the returned column carries
// the declared spelling.
func (m SchemaMap) Lookup(name string) (Column, bool) {
	for _, c := range m {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// WriteMode selects how an uploaded file lands in the target table.
type WriteMode string

// Supported write modes.
const (
	WriteModeOverwrite WriteMode = "overwrite"
	WriteModeAppend    WriteMode = "append"
	WriteModeMerge     WriteMode = "merge"
)

// ParseWriteMode converts a user-supplied string into a WriteMode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch m := WriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case WriteModeOverwrite, WriteModeAppend, WriteModeMerge:
		return m, nil
	case "":
		return "", ErrValidation("write mode is required")
	default:
		return "", ErrValidation("unsupported write mode %q; supported: overwrite, append, merge", s)
	}
}

// WriteRequest is a write as submitted by an API or CLI caller. The source is
// the volume key returned by an upload, never a raw path or URL; it is
// resolved against the configured volume before dispatch.
type WriteRequest struct {
	Mode      WriteMode
	Target    TableRef
	SourceKey string
	MergeKey  *string
}

// WriteOperation is the transient request for one dispatch call.
type WriteOperation struct {
	Mode      WriteMode
	Target    TableRef
	SourceURI string
	MergeKey  *string // required iff Mode == WriteModeMerge
}

// Validate checks the operation before any staging object is created.
func (op WriteOperation) Validate() error {
	switch op.Mode {
	case WriteModeOverwrite, WriteModeAppend, WriteModeMerge:
	case "":
		return ErrValidation("write mode is required")
	default:
		return ErrValidation("unsupported write mode %q", op.Mode)
	}
	if op.Target.Catalog == "" || op.Target.Schema == "" || op.Target.Table == "" {
		return ErrValidation("a catalog, schema, and table are required")
	}
	if strings.TrimSpace(op.SourceURI) == "" {
		return ErrValidation("no uploaded file found; upload a CSV first")
	}
	if op.Mode == WriteModeMerge && (op.MergeKey == nil || *op.MergeKey == "") {
		return ErrValidation("merge mode requires a merge key")
	}
	return nil
}

// WriteState is a state of the dispatch state machine.
type WriteState string

// Dispatch states.
const (
	StateIdle        WriteState = "IDLE"
	StateValidating  WriteState = "VALIDATING"
	StateOverwriting WriteState = "OVERWRITING"
	StateAppending   WriteState = "APPENDING"
	StateMerging     WriteState = "MERGING"
	StateCompleted   WriteState = "COMPLETED"
	StateFailed      WriteState = "FAILED"
)

// Result headers shown to callers.
const (
	HeaderSuccess = "Success"
	HeaderError   = "Error"
)

// WriteResult is the status object returned for every dispatch. Exactly one
// of a success or a failure message is produced.
type WriteResult struct {
	Success      bool
	Header       string
	Message      string
	Mode         WriteMode
	Target       TableRef
	State        WriteState
	Stage        string // failing stage, empty on success
	RowsAffected int64  // -1 when the engine did not report a count
	StagingView  string
	Warnings     []string
	Duration     time.Duration
	Err          error
}

// ErrorKind returns the kind of the failure, or "" on success.
func (r *WriteResult) ErrorKind() string {
	return ErrorKind(r.Err)
}

// Succeed marks the result completed.
func (r *WriteResult) Succeed(format string, args ...interface{}) {
	r.Success = true
	r.Header = HeaderSuccess
	r.State = StateCompleted
	r.Stage = ""
	r.Err = nil
	r.Message = fmt.Sprintf(format, args...)
}

// Fail marks the result failed at stage with err as the cause.
func (r *WriteResult) Fail(stage string, err error) {
	r.Success = false
	r.Header = HeaderError
	r.State = StateFailed
	r.Stage = stage
	r.Err = err
	r.Message = fmt.Sprintf("%s failed: %v", stage, err)
}

// UploadedFile describes a file placed where the warehouse can read it.
type UploadedFile struct {
	Name string
	// Key is the volume key callers pass back to preview or write the file.
	Key       string
	RemoteURI string
	Size      int64
}

// PreviewResult holds the header and leading rows of an uploaded file.
type PreviewResult struct {
	Columns []string
	Rows    [][]string
	Limit   int
}
