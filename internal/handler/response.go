// Package handler contains the HTTP handlers of the blog API.
//
// HANDLER RESPONSIBILITIES:
//  1. Decode and validate the request (path params, query, JSON body)
//  2. Call the service layer
//  3. Write the JSON response
//
// Business rules live in internal/service. Handlers only translate HTTP.
package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so all responses share
// one shape. Errors always look like:
//
//	{"error": "validation_error", "message": "A blog should have a title", "field": "title"}
//
// and the mapping from domain error to status code lives in exactly one place.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/blog-backend/internal/apperror"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, if any
}

// MessageResponse is the body of endpoints that only report an outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// DataResponse wraps a payload as {"data": ...}.
type DataResponse struct {
	Status string `json:"status,omitempty"`
	Data   any    `json:"data"`
}

// writeJSON sends data as JSON with the given status.
// Headers and status must be written before the body; once Encode writes,
// later header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code and sends it.
//
// errors.Is walks the whole chain, so a service error such as
//
//	fmt.Errorf("updating blog: %w", apperror.Forbidden("..."))
//
// still maps to 403. Anything that is not an *apperror.AppError is an
// unexpected failure: it is logged and the client gets a generic 500, since
// raw errors can carry SQL, file paths or hostnames.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Something went very wrong!",
		})
		return
	}

	status := http.StatusInternalServerError
	kind := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrInternal):
		// Message is client-safe by construction; the cause is only logged.
		slog.Error("internal error", slog.String("message", appErr.Message), slog.String("error", err.Error()))
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}
