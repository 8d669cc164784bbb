package query

import (
	"errors"
	"fmt"
)

// InvalidRangeError reports a negative limit or offset.
type InvalidRangeError struct {
	What  string // "limit" or "offset"
	Value int64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid %s %d: must be non-negative", e.What, e.Value)
}

// IsInvalidRange reports whether err is (or wraps) an InvalidRangeError.
func IsInvalidRange(err error) bool {
	var re *InvalidRangeError
	return errors.As(err, &re)
}

// CompilationError reports an operation specification that is internally
// inconsistent: an unknown field, a metric without a source, a window frame
// that ends before it starts. Detected at Build or operation-finalize time,
// before any I/O.
type CompilationError struct {
	// Op names the operation kind ("aggregate", "join", "window") or
	// "spec" for builder-level defects.
	Op string

	// Reason describes the inconsistency.
	Reason string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("cannot compile %s: %s", e.Op, e.Reason)
}

// IsCompilation reports whether err is (or wraps) a CompilationError.
func IsCompilation(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

func compileErr(op, format string, args ...any) *CompilationError {
	return &CompilationError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedOperatorError reports an operator applied to a field type it
// cannot serve, such as a pattern match against a non-text field.
type UnsupportedOperatorError struct {
	Operator  string
	Field     string
	FieldType string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %q cannot apply to field %s of type %s",
		e.Operator, e.Field, e.FieldType)
}

// IsUnsupportedOperator reports whether err is (or wraps) an
// UnsupportedOperatorError.
func IsUnsupportedOperator(err error) bool {
	var ue *UnsupportedOperatorError
	return errors.As(err, &ue)
}

// ExecutionError wraps a failure surfaced by the connection while running a
// compiled artifact. The engine never retries; retry policy belongs to the
// connection collaborator.
type ExecutionError struct {
	Collection string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute against %s: %v", e.Collection, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecution reports whether err is (or wraps) an ExecutionError.
func IsExecution(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// MappingError reports a raw value that cannot be coerced back to its
// declared field type. Rows yielded before the raising row stay yielded;
// the stream stops at the raising row.
type MappingError struct {
	Field string
	Value any
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map field %s from %T: %v", e.Field, e.Value, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// IsMapping reports whether err is (or wraps) a MappingError.
func IsMapping(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}
