package httpx

import (
	"errors"
	"net/http"

	"github.com/concord-collective/concord/internal/eligibility"
	"github.com/concord-collective/concord/internal/shared"
)

// ErrValidation marks malformed or incomplete request payloads.
var ErrValidation = errors.New("validation failed")

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrLocked):
		Problem(w, http.StatusConflict, "Reconciliation In Progress", err.Error())
	case errors.Is(err, shared.ErrInvalidToken):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, eligibility.ErrNoTenant), errors.Is(err, eligibility.ErrNotAuthorized):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
