package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   writeError(w, h.logger, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "validation_error", "message": "Invalid preferences data."}
//
// Registration adds the per-field messages:
//   {"error": "validation_error", "message": "...", "fields": {"username": ["..."]}}

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/study-timer/internal/apperror"
)

// maxBodyBytes caps request bodies. Every body this API accepts is a small
// JSON object.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string              `json:"error"`            // Machine-readable error type (e.g., "not_found")
	Message string              `json:"message"`          // Human-readable description
	Fields  map[string][]string `json:"fields,omitempty"` // Per-field validation messages
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once Encode
// writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation   → 400 validation_error
//	apperror.ErrUnauthorized → 401 unauthorized
//	apperror.ErrNotFound     → 404 not_found
//	apperror.ErrConflict     → 409 conflict
//	anything else            → 500 internal_error (logged, never echoed)
//
// errors.Is walks the whole chain, so a service error wrapped with
// fmt.Errorf("...: %w", appErr) still maps correctly.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			errorType = "conflict"
		}

		if status == http.StatusInternalServerError {
			logger.Error("unmapped application error", slog.String("error", err.Error()))
			appErr = &apperror.AppError{Message: "An internal error occurred"}
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Fields:  appErr.Fields,
		})
		return
	}

	// Unknown error: the raw message may contain SQL or file paths, so the
	// client only gets a generic 500.
	logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// errInvalidJSON is returned by decodeObject for a body that is not a JSON
// object, and by requestObject.Strings for a field that is not a string.
var errInvalidJSON = errors.New("invalid JSON body")

// readBody reads the (size-capped) request body. An empty body is returned
// as nil, not an error.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// requestObject is a request body decoded key by key.
//
// WHY NOT A STRUCT?
// encoding/json matches struct fields case-insensitively, so {"Username":...}
// would fill a `json:"username"` field. Looking keys up in the map matches
// them exactly, the same way the preference document and study_time are read.
type requestObject map[string]json.RawMessage

// decodeObject reads the request body as a JSON object. An empty body is an
// empty object.
func decodeObject(w http.ResponseWriter, r *http.Request) (requestObject, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	obj := requestObject{}
	if body == nil {
		return obj, nil
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return obj, nil
}

// Strings copies each named string field into its destination. An absent key
// or null leaves the destination empty; any other non-string is an error.
func (o requestObject) Strings(dst map[string]*string) error {
	for key, ptr := range dst {
		raw, ok := o[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, ptr); err != nil {
			return fmt.Errorf("%w: field %q: %v", errInvalidJSON, key, err)
		}
	}
	return nil
}

// writeInvalidJSON sends the 400 used for undecodable request bodies.
func writeInvalidJSON(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_json",
		Message: "Invalid JSON body",
	})
}
