package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation   ErrorCategory = "validation"    // Invalid input
	ErrCatTransient    ErrorCategory = "transient"     // Node unreachable, poll timeout
	ErrCatCondition    ErrorCategory = "condition"     // Step precondition not met
	ErrCatLockConflict ErrorCategory = "lock_conflict" // Resource lock held elsewhere
	ErrCatNoPath       ErrorCategory = "no_path"       // No transfer path exists
	ErrCatNode         ErrorCategory = "node"          // Instrument reported failure
	ErrCatState        ErrorCategory = "state"         // State corruption/conflict
	ErrCatNotFound     ErrorCategory = "not_found"     // Record not found
	ErrCatInternal     ErrorCategory = "internal"      // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrTransient creates a retryable communication error.
func ErrTransient(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTransient,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrConditionNotMet creates a condition error. Not an error in the
// scheduling sense: the step stays queued and is re-checked next tick.
func ErrConditionNotMet(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCondition,
		Code:      "CONDITION_NOT_MET",
		Message:   message,
		Retryable: false,
	}
}

// ErrLockConflict creates a lock conflict error.
func ErrLockConflict(resourceID, holder string) *DomainError {
	return &DomainError{
		Category:  ErrCatLockConflict,
		Code:      "LOCK_HELD",
		Message:   fmt.Sprintf("resource %s locked by %s", resourceID, holder),
		Retryable: false,
	}
}

// ErrNoTransferPath creates a permanent no-path error.
func ErrNoTransferPath(source, destination LocationID) *DomainError {
	return &DomainError{
		Category:  ErrCatNoPath,
		Code:      "NO_TRANSFER_PATH",
		Message:   fmt.Sprintf("no transfer path from %s to %s", source, destination),
		Retryable: false,
	}
}

// ErrNode creates an instrument failure error.
func ErrNode(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNode,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(kind, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s %s not found", kind, id),
		Retryable: false,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(message string, cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      "INTERNAL",
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// IsRetryable reports whether an error should be retried.
func IsRetryable(err error) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsCategory reports whether an error belongs to the given category.
func IsCategory(err error, cat ErrorCategory) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category == cat
	}
	return false
}
