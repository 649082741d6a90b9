package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/tender-radar/internal/store"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrRunInProgress is returned when a run is requested while one is still going.
var ErrRunInProgress = errors.New("a run is already in progress")

// ErrNotConfigured is returned by endpoints whose backing component was not wired.
var ErrNotConfigured = errors.New("endpoint not configured")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *ErrValidation
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrNotConfigured):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
