package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across handler layers.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps generic domain errors to HTTP responses. Conflict errors
// from the case engine carry their own code and are mapped by the handlers
// before reaching this fallback.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	default:
		Error(w, http.StatusInternalServerError, "internal_error", "", nil)
	}
}
