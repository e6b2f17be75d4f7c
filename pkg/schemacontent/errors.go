package schemacontent

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
)

// Error types
var (
	// ErrContentNotFound indicates a lifecycle operation on content that has no stored row
	ErrContentNotFound = errors.New("content not found")

	// ErrContentExists indicates a create for an id that already has stored rows
	ErrContentExists = errors.New("content already exists")

	// ErrContentArchived indicates a write to archived content
	ErrContentArchived = errors.New("content is archived")

	// ErrInvalidStatus indicates an unknown status value
	ErrInvalidStatus = errors.New("invalid content status")

	// ErrSchemaNotFound indicates the schema is unknown or belongs to another app
	ErrSchemaNotFound = schema.ErrSchemaNotFound

	// ErrDuplicateVersion is returned by Store.Insert when the (app, id, version)
	// row already exists.
	ErrDuplicateVersion = errors.New("content version already exists")
)

// ValidationError marks a query or payload the caller can correct.
// It wraps an *UnknownFieldError, *TypeMismatchError or *UnsupportedQueryError.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UnknownFieldError reports a field path the schema cannot resolve.
type UnknownFieldError struct {
	Schema string
	Path   string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field path %q in schema %s", e.Path, e.Schema)
}

// TypeMismatchError reports a literal that cannot be coerced to the field type.
type TypeMismatchError struct {
	Path string
	// Expected is a schema field type or a system type (Guid, Integer).
	Expected string
	Value    any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("value %v (%T) does not match type %s of %q", e.Value, e.Value, e.Expected, e.Path)
}

// UnsupportedQueryError reports a predicate shape no backend supports.
type UnsupportedQueryError struct {
	Path   string
	Reason string
}

func (e *UnsupportedQueryError) Error() string {
	if e.Path == "" {
		return "unsupported query: " + e.Reason
	}
	return fmt.Sprintf("unsupported query on %q: %s", e.Path, e.Reason)
}

// VersionConflictError reports a failed optimistic-concurrency precondition.
// Actual is the latest stored version when known.
type VersionConflictError struct {
	ContentID uuid.UUID
	Expected  int64
	Actual    int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for content %s: expected %d, latest is %d", e.ContentID, e.Expected, e.Actual)
}

// CancelledError reports an operation stopped by its context.
type CancelledError struct {
	Op  string
	Err error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s cancelled: %v", e.Op, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// StorageUnavailableError reports a transient infrastructure failure.
// Only the message of the engine error is kept.
type StorageUnavailableError struct {
	Op  string
	Msg string
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %s", e.Op, e.Msg)
}

// StorageError reports any other storage engine failure.
// Only the message of the engine error is kept.
type StorageError struct {
	Op  string
	Msg string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %s", e.Op, e.Msg)
}

// NewStorageError converts an engine error into a *StorageError.
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Msg: err.Error()}
}

// NewStorageUnavailableError converts an engine error into a *StorageUnavailableError.
func NewStorageUnavailableError(op string, err error) error {
	return &StorageUnavailableError{Op: op, Msg: err.Error()}
}

// IsValidation reports whether err is a caller-correctable validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsVersionConflict reports whether err is an optimistic-concurrency failure.
func IsVersionConflict(err error) bool {
	var v *VersionConflictError
	return errors.As(err, &v)
}
