package nodestore

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested item does not exist.
	ErrNotFound = errors.New("nodestore: item not found")

	// ErrSchema is matched by every SchemaError.
	ErrSchema = errors.New("nodestore: invalid schema")

	// ErrTimeout is matched by every TimeoutError.
	ErrTimeout = errors.New("nodestore: timeout")

	// ErrMissingProperty is matched by every MissingPropertyError.
	ErrMissingProperty = errors.New("nodestore: missing property")

	// ErrRange is matched by every RangeError.
	ErrRange = errors.New("nodestore: value out of range")
)

// NotFoundError represents an error when an item is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("nodestore: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("nodestore: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the item label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotLoadedError represents an error when attempting to access an edge
// that was not requested by the resolving descriptor.
type NotLoadedError struct {
	edge string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("nodestore: edge %q was not loaded", e.edge)
}

// NewNotLoadedError returns a new NotLoadedError for the given edge name.
func NewNotLoadedError(edge string) *NotLoadedError {
	return &NotLoadedError{edge: edge}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// SchemaError reports a shape that cannot be mapped to a table.
type SchemaError struct {
	Shape string // Go type of the entity
	Msg   string
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("nodestore: schema %s: %s", e.Shape, e.Msg)
}

// Is reports whether the target error matches ErrSchema.
func (e *SchemaError) Is(err error) bool {
	return err == ErrSchema
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(shape, format string, args ...any) *SchemaError {
	return &SchemaError{Shape: shape, Msg: fmt.Sprintf(format, args...)}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// MissingPropertyError is returned when a query result carries a column
// that the target shape has no descriptor for.
type MissingPropertyError struct {
	Shape  string
	Column string
}

// Error returns the error string.
func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("nodestore: shape %s has no property for column %q", e.Shape, e.Column)
}

// Is reports whether the target error matches ErrMissingProperty.
func (e *MissingPropertyError) Is(err error) bool {
	return err == ErrMissingProperty
}

// IsMissingProperty returns true if the error is a MissingPropertyError.
func IsMissingProperty(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingPropertyError
	return errors.As(err, &e)
}

// RangeError is returned when a value slot is assigned its reserved
// "unset" sentinel explicitly.
type RangeError struct {
	Field string
	Value any
}

// Error returns the error string.
func (e *RangeError) Error() string {
	return fmt.Sprintf("nodestore: value %v is reserved for field %q", e.Value, e.Field)
}

// Is reports whether the target error matches ErrRange.
func (e *RangeError) Is(err error) bool {
	return err == ErrRange
}

// TimeoutError is returned when a pooled connection could not be acquired in time.
type TimeoutError struct {
	Address string
	Waited  time.Duration
}

// Error returns the error string.
func (e *TimeoutError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("nodestore: acquire connection to %s timed out after %s", e.Address, e.Waited)
	}
	return fmt.Sprintf("nodestore: acquire connection timed out after %s", e.Waited)
}

// Is reports whether the target error matches ErrTimeout.
func (e *TimeoutError) Is(err error) bool {
	return err == ErrTimeout
}

// IsTimeout returns true if the error is a TimeoutError.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var e *TimeoutError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("nodestore: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Table string // Table being queried
	Op    string // Operation (e.g., "select", "exists")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("nodestore: querying %s (%s): %v", e.Table, e.Op, e.Err)
	}
	return fmt.Sprintf("nodestore: querying %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(table, op string, err error) *QueryError {
	return &QueryError{Table: table, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Table string // Table being mutated
	Op    string // Operation (e.g., "insert", "update", "delete")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("nodestore: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(table, op string, err error) *MutationError {
	return &MutationError{Table: table, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
