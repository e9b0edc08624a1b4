package query

import "fmt"

// ValidationKind identifies why a submission was rejected before dispatch.
type ValidationKind string

const (
	ValidationEmptyQuery       ValidationKind = "empty_query"
	ValidationUnbalancedQuote  ValidationKind = "unbalanced_quoting"
	ValidationNoTargetSelected ValidationKind = "no_target_selected"
	ValidationDuplicateTarget  ValidationKind = "duplicate_target"
)

// ValidationError indicates invalid input, returned synchronously before any
// job is created.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(kind ValidationKind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates an unknown job id.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}
