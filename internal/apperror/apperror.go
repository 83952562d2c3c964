// Package apperror defines the typed errors shared by the service and
// handler layers.
//
// Services return these; handlers translate them to HTTP status codes in one
// place (handler/response.go). Sentinels are matched with errors.Is, the
// AppError carrying the human-readable message is extracted with errors.As.
package apperror

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// Fields holds per-field messages when more than one field failed
	// validation at once (registration). Nil for every other error.
	Fields map[string][]string
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

// InvalidPayload reports a request body that has the wrong overall shape,
// e.g. a preferences update whose "preferences" value is not an object.
// Nothing has been applied when this is returned.
func InvalidPayload(message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
	}
}

// MissingParameter reports a required query parameter that was not sent.
func MissingParameter(param, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   param,
	}
}

// Conflict reports a unique value that is already taken. Field names the
// column ("username", "github_id") so callers can tell the cases apart.
func Conflict(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s with that %s already exists", resource, field),
		Field:   field,
	}
}

// Unauthorized returns an AppError for bad credentials or tokens.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// FieldErrors collects validation messages keyed by field name.
//
// Usage:
//
//	var fe apperror.FieldErrors
//	fe.Add("username", "This field is required.")
//	if err := fe.Err(); err != nil {
//	    return err
//	}
type FieldErrors map[string][]string

// Add appends a message for field, allocating the map on first use.
func (fe *FieldErrors) Add(field, message string) {
	if *fe == nil {
		*fe = make(FieldErrors)
	}
	(*fe)[field] = append((*fe)[field], message)
}

// Err returns nil when no field failed, otherwise a validation AppError whose
// Message is the first message of the alphabetically first field.
func (fe FieldErrors) Err() error {
	if len(fe) == 0 {
		return nil
	}

	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	return &AppError{
		Err:     ErrValidation,
		Message: fe[fields[0]][0],
		Field:   fields[0],
		Fields:  map[string][]string(fe),
	}
}
