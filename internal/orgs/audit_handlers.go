package orgs

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

// HandleListAudit handles GET /api/v1/orgs/{org_id}/audit[?action=&limit=]
func HandleListAudit(reader *audit.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orgID := chi.URLParam(r, "org_id")

		if err := authz.Check(principals.FromContext(ctx), authz.ViewOrgAudit, orgID); err != nil {
			writeError(w, r, err, "list audit log")
			return
		}

		query := r.URL.Query()
		filter := audit.Filter{Action: query.Get("action")}
		if raw := query.Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				apperrors.WriteInvalidField(w, r, "limit", "limit must be a positive integer")
				return
			}
			filter.Limit = limit
		}

		events, err := reader.ListByOrg(ctx, orgID, filter)
		if err != nil {
			writeError(w, r, err, "list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
			"count":  len(events),
		})
	}
}
