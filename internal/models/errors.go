package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an AppError for clients and for status-code
// mapping when no explicit code is set.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeDependency     ErrorType = "dependency"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeInternal       ErrorType = "internal"
)

// AppError is the JSON error envelope returned for unhandled errors.
// The Cause is kept for logs and never serialized.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitzero"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode maps the error type to an HTTP status when no explicit
// status was set.
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeDependency:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewRateLimitError reports an exhausted rate limit; limit describes the
// window, e.g. "1000 requests per minute".
func NewRateLimitError(limit string) *AppError {
	return &AppError{
		Type:      ErrorTypeRateLimit,
		Message:   fmt.Sprintf("rate limit exceeded: %s", limit),
		Code:      "RATE_LIMIT_EXCEEDED",
		Retryable: true,
	}
}

// NewTimeoutError reports an aborted long-running operation.
func NewTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeTimeout,
		Message:   fmt.Sprintf("operation %s timed out", operation),
		Retryable: true,
		Cause:     cause,
	}
}

// NewInternalError wraps an unexpected error without leaking its detail.
func NewInternalError(cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: "internal server error",
		Cause:   cause,
	}
}

// SanitizeError converts any error into an AppError safe to serialize:
// the internal cause is stripped so driver and stack detail never reaches
// a client.
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
		}
	}
	return NewInternalError(err)
}
