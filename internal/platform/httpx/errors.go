// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/gestion/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrBadRequest      = errors.New("malformed request")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", "", err.Error())
		return
	case errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Bad Request", shared.KindValidationFailure, err.Error())
		return
	}
	kind := shared.KindOf(err)
	switch kind {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", kind, err.Error())
	case shared.KindUnauthorized:
		Problem(w, http.StatusForbidden, "Forbidden", kind, err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusUnprocessableEntity, "Conflict", kind, err.Error())
	case shared.KindValidationFailure:
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", kind, err.Error())
	case shared.KindPersistenceFailure:
		// Store errors may carry SQL; keep them out of the body.
		Problem(w, http.StatusServiceUnavailable, "Persistence Failure", kind, "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.KindInternal, "")
	}
}
