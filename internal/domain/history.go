package domain

import "time"

// WriteRecord is one persisted row of write history.
type WriteRecord struct {
	ID            int64
	RequestID     string
	PrincipalName string
	Mode          WriteMode
	Target        TableRef
	SourceURI     string
	MergeKey      *string
	Success       bool
	ErrorKind     string
	Stage         string
	Message       string
	RowsAffected  int64
	StagingView   string
	DurationMs    int64
	CreatedAt     time.Time
}

// NewWriteRecord builds a history record from an operation and its result.
func NewWriteRecord(principal, requestID string, op WriteOperation, res *WriteResult) *WriteRecord {
	return &WriteRecord{
		RequestID:     requestID,
		PrincipalName: principal,
		Mode:          op.Mode,
		Target:        op.Target,
		SourceURI:     op.SourceURI,
		MergeKey:      op.MergeKey,
		Success:       res.Success,
		ErrorKind:     res.ErrorKind(),
		Stage:         res.Stage,
		Message:       res.Message,
		RowsAffected:  res.RowsAffected,
		StagingView:   res.StagingView,
		DurationMs:    res.Duration.Milliseconds(),
	}
}

// HistoryFilter narrows a write history listing.
type HistoryFilter struct {
	PrincipalName *string
	Catalog       *string
	Schema        *string
	Table         *string
	Success       *bool
	Limit         int
	Offset        int
}

// DefaultHistoryLimit is the page size used when none is requested.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps a single history page.
const MaxHistoryLimit = 500

// EffectiveLimit clamps Limit to [1, MaxHistoryLimit].
func (f HistoryFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultHistoryLimit
	case f.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return f.Limit
	}
}
