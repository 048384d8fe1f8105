package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeUnsupportedEngine ErrorType = "unsupported_engine"
	ErrTypeValidation        ErrorType = "validation"
	ErrTypeExecution         ErrorType = "execution"
	ErrTypeConnection        ErrorType = "connection"
	ErrTypeNotFound          ErrorType = "not_found"
	ErrTypeConfig            ErrorType = "config"
	ErrTypeStorage           ErrorType = "storage"
	ErrTypeInternal          ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Detail returns the message of the underlying cause, or "" when there is none.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// As returns the outermost structured error in err's chain.
func As(err error) (*Error, bool) {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr, true
	}
	return nil, false
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if structErr, ok := As(err); ok {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	if structErr, ok := As(err); ok {
		return structErr.Type
	}

	return ErrTypeInternal
}

// NewUnsupportedEngine reports a connection URL scheme that names no known engine.
func NewUnsupportedEngine(scheme string) *Error {
	return Newf(ErrTypeUnsupportedEngine, "unsupported database type: %s", scheme).
		WithSuggestion("Use a postgres://, postgresql:// or mysql:// URL")
}

// NewNotFound reports a missing connection record.
func NewNotFound(name string) *Error {
	return Newf(ErrTypeNotFound, "database connection '%s' does not exist", name)
}
