package principals

import (
	"errors"
	"net/http"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/rs/zerolog/log"
)

type meResponse struct {
	Principal   *identity.Principal `json:"principal"`
	Credentials []CredentialStatus  `json:"credentials"`
}

// HandleMe handles GET /api/v1/me
func HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := FromContext(r.Context())
		if p == nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, meResponse{
			Principal:   p,
			Credentials: Summarize(p.Credentials, time.Now().UTC()),
		})
	}
}

// HandleUpdateCredentials handles PUT /api/v1/me/credentials
func HandleUpdateCredentials(store *Store, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := FromContext(ctx)
		if p == nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}

		var req identity.CredentialSet
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		updated, err := store.UpdateCredentials(ctx, p, req)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Principal not found")
				return
			}
			apperrors.WriteServiceError(w, r, err, "update credentials")
			return
		}

		if err := auditor.LogCredentialsUpdated(ctx, p.OrganisationID, p.Ref()); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, meResponse{
			Principal:   updated,
			Credentials: Summarize(updated.Credentials, time.Now().UTC()),
		})
	}
}
