package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to clients.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeDuplicate           = "DUPLICATE"
	CodeConflict            = "CONFLICT"
	CodeClosed              = "REGISTRATION_CLOSED"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyConfirmed    = "ALREADY_CONFIRMED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAllocationExhausted = "ALLOCATION_EXHAUSTED"
	CodeStore               = "STORE_ERROR"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Retryable reports whether the whole operation may be retried unchanged.
func (e *AppError) Retryable() bool {
	return e.Code == CodeAllocationExhausted
}

// AsAppError extracts an *AppError from anywhere in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an AppError with the given code.
func IsCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Standard domain error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

// ErrDuplicate rejects a registration that collides with an existing voter.
// what names the rule that matched ("national id", "similar identity").
func ErrDuplicate(what string) *AppError {
	return &AppError{Code: CodeDuplicate, Message: "duplicate " + what, Status: 409}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrClosed() *AppError {
	return &AppError{Code: CodeClosed, Message: "registration is closed", Status: 403}
}

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrAlreadyConfirmed(regNo string) *AppError {
	return &AppError{Code: CodeAlreadyConfirmed, Message: fmt.Sprintf("voter %s has already voted", regNo), Status: 409}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrAllocationExhausted(attempts int) *AppError {
	return &AppError{
		Code:    CodeAllocationExhausted,
		Message: fmt.Sprintf("could not allocate a unique registration number after %d attempts", attempts),
		Status:  503,
	}
}

func ErrStore(msg string, cause error) *AppError {
	return &AppError{Code: CodeStore, Message: msg, Status: 500, Cause: cause}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
