// Package errors provides coded application errors shared by the repository,
// service and handler layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an application error.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeBusiness     ErrorCode = "BUSINESS_ERROR"
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// AppError is an error carrying an ErrorCode and a human-readable message.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError with the same code, so callers can write
// errors.Is(err, &AppError{Code: ErrCodeNotFound}).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, id string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
	}
}

// Business reports a violated precondition reachable under normal use.
func Business(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeBusiness, Message: fmt.Sprintf(format, args...)}
}

// AccessDenied reports an authenticated caller acting outside their rights.
func AccessDenied(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAccessDenied, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *AppError {
	return &AppError{Code: ErrCodeUnauthorized, Message: message}
}

// InvalidInput reports a malformed request field.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Field:   field,
		Message: fmt.Sprintf("invalid %s: %s", field, message),
	}
}

// Code returns the ErrorCode of err, or ErrCodeInternal for foreign errors.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

// HTTPStatus maps err to the response status the boundary should use.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeBusiness, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
