package apperrors

import (
	"errors"
	"net/http"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

// WriteServiceError maps the shared error taxonomy onto HTTP responses.
// Access denials and validation failures stop the operation; store failures
// are reported as the failed operation named by action.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var ve *validation.Error
	switch {
	case errors.Is(err, authz.ErrAccessDenied):
		WriteAccessDenied(w, r)
	case errors.As(err, &ve):
		WriteInvalidField(w, r, ve.Field, ve.Error())
	case errors.Is(err, docstore.ErrNotFound):
		WriteNotFound(w, r, "Not found")
	case errors.Is(err, docstore.ErrConflict):
		WriteConflict(w, r, "Concurrent modification, retry the request")
	default:
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Failed to " + action)
		WriteInternalError(w, r, "Failed to "+action)
	}
}
