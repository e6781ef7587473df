// Package domain defines core types, interfaces, and errors for the table loader.
package domain

import (
	"errors"
	"fmt"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates insufficient permissions.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// ValidationError indicates missing or malformed operation parameters.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// SchemaLookupError indicates the target schema could not be introspected,
// either because the table is absent or the description query failed.
type SchemaLookupError struct {
	Table string
	Cause error
}

func (e *SchemaLookupError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("schema lookup for %s failed", e.Table)
	}
	return fmt.Sprintf("schema lookup for %s failed: %v", e.Table, e.Cause)
}

func (e *SchemaLookupError) Unwrap() error { return e.Cause }

// StagingViewError indicates creation or drop of an ephemeral staging view failed.
type StagingViewError struct {
	View  string
	Op    string // "create" or "drop"
	Cause error
}

func (e *StagingViewError) Error() string {
	return fmt.Sprintf("%s staging view %s: %v", e.Op, e.View, e.Cause)
}

func (e *StagingViewError) Unwrap() error { return e.Cause }

// CastError indicates a staged value could not be written under the declared
// column types when the insert or merge statement executed. A staged file that
// lacks one of the target's columns also surfaces here.
type CastError struct {
	Table string
	Stage string // "insert" or "merge"
	Cause error
}

func (e *CastError) Error() string {
	return fmt.Sprintf("%s into %s failed: %v", e.Stage, e.Table, e.Cause)
}

func (e *CastError) Unwrap() error { return e.Cause }

// MergeKeyError indicates the merge key is not one of the target's columns,
// or that the uploaded file repeats a key value so a target row would match
// several staged rows.
type MergeKeyError struct {
	Key       string
	Table     string
	Duplicate *string // repeated key value, nil when the key is not a column
}

func (e *MergeKeyError) Error() string {
	if e.Duplicate != nil {
		return fmt.Sprintf("merge key %q is not unique in the uploaded file: value %q appears more than once", e.Key, *e.Duplicate)
	}
	return fmt.Sprintf("merge key %q is not a column of %s", e.Key, e.Table)
}

// TransferError indicates the file transfer collaborator could not place an
// uploaded file where the warehouse can read it.
type TransferError struct {
	Path  string
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Path, e.Cause)
}

func (e *TransferError) Unwrap() error { return e.Cause }

// Error kind names reported in write results, history rows, and API payloads.
const (
	KindValidation   = "ValidationError"
	KindSchemaLookup = "SchemaLookupError"
	KindStagingView  = "StagingViewError"
	KindCast         = "CastError"
	KindMergeKey     = "MergeKeyError"
	KindTransfer     = "TransferError"
	KindNotFound     = "NotFoundError"
	KindAccessDenied = "AccessDeniedError"
	KindConflict     = "ConflictError"
	KindInternal     = "InternalError"
)

// ErrorKind returns the stable kind name of err, or "" for a nil error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var (
		validation   *ValidationError
		schemaLookup *SchemaLookupError
		stagingView  *StagingViewError
		castErr      *CastError
		mergeKey     *MergeKeyError
		transfer     *TransferError
		notFound     *NotFoundError
		accessDenied *AccessDeniedError
		conflict     *ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &mergeKey):
		return KindMergeKey
	case errors.As(err, &schemaLookup):
		return KindSchemaLookup
	case errors.As(err, &stagingView):
		return KindStagingView
	case errors.As(err, &castErr):
		return KindCast
	case errors.As(err, &transfer):
		return KindTransfer
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &accessDenied):
		return KindAccessDenied
	case errors.As(err, &conflict):
		return KindConflict
	default:
		return KindInternal
	}
}
