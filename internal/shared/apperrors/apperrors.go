package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindSourceIO          Kind = "SOURCE_IO"
	KindDatabase          Kind = "DATABASE"
	KindInternal          Kind = "INTERNAL"
)

// AppError carries an error kind alongside a human-readable message.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap wraps an underlying error with a kind and message.
func Wrap(err error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return New(KindValidation, message)
}

// NotFound creates a not found error.
func NotFound(resource string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

// Conflict creates a conflict error.
func Conflict(message string) *AppError {
	return New(KindConflict, message)
}

// InsufficientFunds creates an insufficient funds error.
func InsufficientFunds(message string) *AppError {
	return New(KindInsufficientFunds, message)
}

// SourceIO wraps an external source read failure.
func SourceIO(message string, err error) *AppError {
	return Wrap(err, KindSourceIO, message)
}

// Database wraps a storage-layer failure.
func Database(message string, err error) *AppError {
	return Wrap(err, KindDatabase, message)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *AppError {
	return Wrap(err, KindInternal, message)
}

// KindOf extracts the Kind from an error chain, defaulting to INTERNAL.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Get extracts an AppError from an error chain, or nil.
func Get(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
