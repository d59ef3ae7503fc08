package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the loader and its API surface.
type ErrorCode string

// Artifact loading error codes
const (
	ErrConfiguration       ErrorCode = "CONFIGURATION"
	ErrArtifactNotFound    ErrorCode = "ARTIFACT_NOT_FOUND"
	ErrTransferFailed      ErrorCode = "TRANSFER_FAILED"
	ErrCorruptArtifact     ErrorCode = "CORRUPT_ARTIFACT"
	ErrValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrFallbackUnavailable ErrorCode = "FALLBACK_UNAVAILABLE"
	ErrCanceled            ErrorCode = "CANCELED"
)

// API error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Coder is implemented by errors that carry an ErrorCode.
type Coder interface {
	ErrorCode() ErrorCode
}

// ErrorCode implements Coder.
func (e *Error) ErrorCode() ErrorCode {
	return e.Code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from anywhere in the error chain.
func GetErrorCode(err error) ErrorCode {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}
