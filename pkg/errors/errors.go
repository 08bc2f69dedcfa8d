package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a request parameter that cannot be clamped
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeRateLimited indicates the caller exceeded its request budget
	ErrorTypeRateLimited ErrorType = "RATE_LIMITED"

	// ErrorTypeUpstreamUnavailable indicates an index or cache backend failed or timed out
	ErrorTypeUpstreamUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type       ErrorType
	Message    string
	Field      string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error type to a response status
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case ErrorTypeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a validation error for a request field
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Field:   field,
		Message: message,
	}
}

// NewRateLimitedError creates a rate limit error with a retry hint
func NewRateLimitedError(retryAfter time.Duration) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewUpstreamUnavailableError creates an error for a failed or slow backend
func NewUpstreamUnavailableError(upstream string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeUpstreamUnavailable,
		Message: upstream + " unavailable",
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// As returns the AppError in err's chain, if any
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err's chain carries an AppError of type t
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}
