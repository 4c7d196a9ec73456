// Package errors defines the service error taxonomy. Every error that
// crosses the HTTP boundary is a ServiceError with a stable code; anything
// else is wrapped as Internal before it leaves the process.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error kind.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeForbidden           ErrorCode = "FORBIDDEN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeSessionExpired      ErrorCode = "SESSION_EXPIRED"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries an error kind, an HTTP status and optional details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// Validation builds a field-level validation error. Violations for all
// fields are aggregated under the "fields" detail key; callers use
// AddField to accumulate before returning.
func Validation(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]interface{}{"fields": map[string]string{}},
	}
}

// AddField records one field violation on a validation error.
func (e *ServiceError) AddField(field, violation string) *ServiceError {
	fields, _ := e.Details["fields"].(map[string]string)
	if fields == nil {
		fields = make(map[string]string)
		e.WithDetails("fields", fields)
	}
	fields[field] = violation
	return e
}

// FieldCount reports how many field violations have been recorded.
func (e *ServiceError) FieldCount() int {
	fields, _ := e.Details["fields"].(map[string]string)
	return len(fields)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "insufficient permissions"
	}
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

func NotFound(entity string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
	}
}

func InsufficientCredits(balance, required int64) *ServiceError {
	return &ServiceError{
		Code:       CodeInsufficientCredits,
		Message:    "insufficient credits",
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]interface{}{
			"current_balance": balance,
			"required_amount": required,
		},
	}
}

func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

func SessionExpired() *ServiceError {
	return &ServiceError{Code: CodeSessionExpired, Message: "session expired", HTTPStatus: http.StatusUnauthorized}
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    "too many requests",
		HTTPStatus: http.StatusTooManyRequests,
		Details: map[string]interface{}{
			"limit":  limit,
			"window": window,
		},
	}
}

func InvalidToken(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeForbidden,
		Message:    "invalid token",
		HTTPStatus: http.StatusForbidden,
		Err:        err,
	}
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "internal error"
	}
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}
