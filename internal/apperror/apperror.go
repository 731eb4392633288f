// Package apperror defines the application's error taxonomy.
//
// Every failure the service layer reports is an *AppError wrapping one of the
// sentinel errors below. Handlers map sentinels to HTTP status codes with
// errors.Is, so the service layer never needs to know about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrService      = errors.New("service error")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed is the BadRequest of the taxonomy: a missing or malformed
// field in the caller's input.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation. field names the unique key
// (e.g. "email" or "username") so clients can highlight it.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports bad credentials. No state is mutated on this path.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InvalidToken reports a third-party identity assertion that failed
// verification. cause is kept for logging but never shown to clients.
func InvalidToken(cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrInvalidToken, cause),
		Message: "Invalid token",
	}
}

// ServiceError reports a downstream dependency failure. message is returned
// to the client verbatim, so it must not contain internal details.
func ServiceError(message string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrService, cause),
		Message: message,
	}
}
