// Package apperror defines the application's error taxonomy.
//
// Every failure a caller may need to react to is an *AppError wrapping one of the
// sentinel errors below, so callers branch with errors.Is and still get a
// human-readable Message for the user. Anything that is not an *AppError is an
// unexpected persistence or infrastructure failure.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrDuplicateUsername    = errors.New("duplicate username")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: form field causing the error
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

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
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

// Unauthenticated means no valid session backs the request.
// HTTP handlers redirect to the login page.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "please log in to continue",
	}
}

// InvalidCredentials is deliberately the same for an unknown username and a
// wrong password.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid username or password",
		Field:   "username",
	}
}

// DuplicateUsername also satisfies errors.Is(err, ErrConflict).
func DuplicateUsername(username string) *AppError {
	return &AppError{
		Err:     errors.Join(ErrDuplicateUsername, ErrConflict),
		Message: fmt.Sprintf("username %q is already taken", username),
		Field:   "username",
	}
}

func UnsupportedMediaType(message string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedMediaType,
		Message: message,
		Field:   "photo",
	}
}
