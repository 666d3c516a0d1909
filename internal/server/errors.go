package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/overlay"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest covers malformed bodies and query parameters.
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps simulator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, core.ErrInvalidCoordinate),
		errors.Is(err, core.ErrInvalidImpactor),
		errors.Is(err, core.ErrInvalidRadius),
		errors.Is(err, core.ErrNoImpactor),
		errors.Is(err, core.ErrNoTarget),
		errors.Is(err, overlay.ErrInvalidSegments):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrRunInProgress),
		errors.Is(err, core.ErrRunNotReset):
		return http.StatusConflict

	case errors.Is(err, ErrNotFound),
		errors.Is(err, core.ErrNoRun):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, statusFor(err), errorBody{
		Error:     err.Error(),
		RequestID: w.Header().Get(requestIDHeader),
	})
}
