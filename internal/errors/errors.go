package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound   ErrCode = "NOT_FOUND"
	ErrCodeForbidden  ErrCode = "FORBIDDEN"
	ErrCodeBadRequest ErrCode = "BAD_REQUEST"
	ErrCodeInternal   ErrCode = "INTERNAL_ERROR"
	ErrCodeConfig     ErrCode = "CONFIG_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewConfigError reports a missing or unusable setting discovered at runtime
func NewConfigError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConfig,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in the chain, or ErrCodeInternal.
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HTTPStatus maps an error onto the status code the front door answers with
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConfig checks if the error is a configuration error
func IsConfig(err error) bool {
	return CodeOf(err) == ErrCodeConfig
}
