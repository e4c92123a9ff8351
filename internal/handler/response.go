package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape the DevHub frontend
// expects:
//
//	{"message": "build log not found with id abc123"}
//
// regardless of whether it's a 400, 401, 404, or 500. The frontend only
// ever reads `message`.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ireddy/devhub-backend/internal/apperror"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE writing the body — once Encode
// calls w.Write internally, the headers are on the wire and any later
// changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent — all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends
// the {message} envelope.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer returns domain errors (apperror.ErrNotFound etc.) and
// knows nothing about HTTP. This function is the single place those become
// status codes. errors.Is walks the wrapped chain, so a service error like
// fmt.Errorf("creating build log: %w", apperror.ValidationFailed(...))
// still maps correctly.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, ErrorResponse{Message: appErr.Message})
		return
	}

	// Unknown error — return a generic 500. The raw error text might contain
	// SQL fragments or file paths; never expose it to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Message: "Server error",
	})
}
