// Package apperror provides structured errors with machine-readable codes.
// All numbering errors surfaced to callers use AppError so they can pick a retry
// policy by code instead of by message.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Lock could not be acquired within the configured wait.
	CodeLockTimeout = "LOCK_TIMEOUT"

	// Malformed input.
	CodeValidation = "VALIDATION_ERROR"

	// Allocation and repair conflicts.
	CodeAllocationFailed       = "ALLOCATION_FAILED"
	CodePeriodExhausted        = "PERIOD_EXHAUSTED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Record lookup by ID missed.
	CodeNotFound = "NOT_FOUND"

	// A persisted record already carries the number.
	CodeDuplicateNumber = "DUPLICATE_NUMBER"
)

// AppError is the standard error type of the numbering packages.
// It implements error interface and provides structured details for operator output.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (number, attempts, lock name, ...)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewInvalidNumber creates a validation error for a malformed document number.
func NewInvalidNumber(number string) *AppError {
	return NewValidation("document number has invalid format").
		WithDetail("number", number)
}

// NewNotFound creates a not found error.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewLockTimeout is returned when the allocator lock was not acquired in time.
// Callers must not retry it blindly: it signals contention or a stuck holder.
func NewLockTimeout(lockName string, wait any) *AppError {
	return &AppError{
		Code:    CodeLockTimeout,
		Message: "Timed out waiting for the numbering lock",
		Details: map[string]any{"lock": lockName, "wait": wait},
	}
}

// NewAllocationFailed is returned when uniqueness could not be confirmed
// after all attempts.
func NewAllocationFailed(prefix, period string, attempts int) *AppError {
	return &AppError{
		Code:    CodeAllocationFailed,
		Message: fmt.Sprintf("Could not allocate a unique number after %d attempts", attempts),
		Details: map[string]any{"prefix": prefix, "period": period, "attempts": attempts},
	}
}

// NewPeriodExhausted is returned when every sequence of a period is taken.
func NewPeriodExhausted(prefix, period string, capacity int) *AppError {
	return &AppError{
		Code:    CodePeriodExhausted,
		Message: fmt.Sprintf("Period %s has no free numbers left", period),
		Details: map[string]any{"prefix": prefix, "period": period, "capacity": capacity},
	}
}

// NewDuplicateNumber is returned when a persisted record already carries the number.
func NewDuplicateNumber(number string) *AppError {
	return &AppError{
		Code:    CodeDuplicateNumber,
		Message: "Document number is already in use",
		Details: map[string]any{"number": number},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: "Record was modified by another writer",
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }

// IsLockTimeout checks if error is CodeLockTimeout
func IsLockTimeout(err error) bool { return HasCode(err, CodeLockTimeout) }

// IsAllocationFailed checks if error is CodeAllocationFailed
func IsAllocationFailed(err error) bool { return HasCode(err, CodeAllocationFailed) }

// IsPeriodExhausted checks if error is CodePeriodExhausted
func IsPeriodExhausted(err error) bool { return HasCode(err, CodePeriodExhausted) }

// IsDuplicateNumber checks if error is CodeDuplicateNumber
func IsDuplicateNumber(err error) bool { return HasCode(err, CodeDuplicateNumber) }

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool { return HasCode(err, CodeConcurrentModification) }
