package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an application error
type ErrorCode string

const (
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	ErrCodeValidation ErrorCode = "VALIDATION"

	// Capability (LLM, TTS, image, storage, email) failures
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE"
	ErrCodeAPITimeout      ErrorCode = "API_TIMEOUT"
	ErrCodeAPIRateLimit    ErrorCode = "API_RATE_LIMIT"

	ErrCodeInternal    ErrorCode = "INTERNAL"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
)

// AppError is a structured error that knows its HTTP status
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
	HTTPCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetHTTPCode returns the HTTP status for the error
func (e *AppError) GetHTTPCode() int {
	if e.HTTPCode != 0 {
		return e.HTTPCode
	}
	return defaultHTTPCode(e.Code)
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: defaultHTTPCode(code)}
}

// Wrap wraps an existing error with an AppError
func Wrap(cause error, code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Cause = cause
	return e
}

func defaultHTTPCode(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeAPIRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeAPITimeout:
		return http.StatusGatewayTimeout
	case ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExternalServiceError creates a capability error
func ExternalServiceError(service string, cause error) *AppError {
	return Wrap(cause, ErrCodeExternalService, fmt.Sprintf("external service '%s' error", service)).
		WithDetail("service", service)
}

// Unavailable reports a feature whose backing service is not configured
func Unavailable(feature string) *AppError {
	return New(ErrCodeUnavailable, fmt.Sprintf("%s is not configured", feature)).
		WithDetail("feature", feature)
}
