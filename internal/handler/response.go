// Package handler provides HTTP handlers for the Gatehouse API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/service"
)

// APIError is the JSON error envelope.
type APIError struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error to its HTTP status and writes the envelope.
// Internal errors are masked; everything else surfaces its message.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := statusForError(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		message = "internal server error"
		if status == http.StatusServiceUnavailable {
			message = "service temporarily unavailable"
		}
	}

	writeJSON(w, status, APIError{Error: message})
}

// statusForError maps domain and service errors to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrLinkNotFound),
		errors.Is(err, domain.ErrPrepAccessNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrLinkAlreadyExists),
		errors.Is(err, domain.ErrPrepAccessExists),
		errors.Is(err, domain.ErrUserAlreadyExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrUserInactive),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrInvalidLinkMode),
		errors.Is(err, domain.ErrInvalidGroupKey),
		errors.Is(err, domain.ErrMalformed),
		errors.Is(err, service.ErrInvalidTargetID),
		errors.Is(err, service.ErrInvalidTTL),
		errors.Is(err, service.ErrInvalidUserID),
		errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrInvalidExamID),
		errors.Is(err, service.ErrInvalidPlanDays),
		errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidPassword):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewDomainError(domain.ErrMalformed, "invalid request body", "")
	}
	return nil
}
