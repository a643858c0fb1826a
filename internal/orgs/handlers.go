package orgs

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

// writeError maps organisation errors onto responses and defers the rest to
// the shared taxonomy.
func writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, ErrOrgNotFound):
		apperrors.WriteNotFound(w, r, "Organisation not found")
	case errors.Is(err, ErrMemberNotFound), errors.Is(err, principals.ErrNotFound):
		apperrors.WriteNotFound(w, r, "Member not found")
	case errors.Is(err, ErrInviteNotFound):
		apperrors.WriteNotFound(w, r, "Invite not found")
	case errors.Is(err, ErrSlugConflict):
		apperrors.WriteConflict(w, r, "Organisation id already exists")
	case errors.Is(err, ErrCannotDemoteLastAdmin), errors.Is(err, ErrCannotRemoveLastAdmin),
		errors.Is(err, ErrMaxUsersReached), errors.Is(err, ErrAlreadyMember),
		errors.Is(err, ErrInviteNotActive):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.Is(err, ErrInvalidMemberRole), errors.Is(err, ErrInviteExpired):
		apperrors.WriteBadRequest(w, r, err.Error())
	case errors.Is(err, ErrInviteEmailMismatch):
		apperrors.WriteForbidden(w, r, err.Error())
	default:
		apperrors.WriteServiceError(w, r, err, action)
	}
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		p := principals.FromContext(ctx)

		var req CreateRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		org, err := svc.Create(ctx, p, req)
		if err != nil {
			writeError(w, r, err, "create organisation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"organisation": org.ViewAt(svc.Now()),
		})
	}
}

// HandleList handles GET /api/v1/orgs
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orgs, err := svc.List(ctx, principals.FromContext(ctx))
		if err != nil {
			writeError(w, r, err, "list organisations")
			return
		}

		now := svc.Now()
		views := make([]View, 0, len(orgs))
		for i := range orgs {
			views = append(views, orgs[i].ViewAt(now))
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organisations": views,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		org, err := svc.Get(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"))
		if err != nil {
			writeError(w, r, err, "get organisation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organisation": org.ViewAt(svc.Now()),
		})
	}
}

// HandleUpdateSettings handles PUT /api/v1/orgs/{org_id}/settings
func HandleUpdateSettings(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SettingsUpdate
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		org, err := svc.UpdateSettings(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), req)
		if err != nil {
			writeError(w, r, err, "update organisation settings")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organisation": org.ViewAt(svc.Now()),
		})
	}
}

type assignRequest struct {
	OrganisationID string `json:"organisationId"`
	Role           string `json:"role"`
}

// HandleAssignPrincipal handles PUT /api/v1/admin/principals/{principal_id}/organisation
func HandleAssignPrincipal(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req assignRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		target, err := svc.AssignPrincipal(ctx, principals.FromContext(ctx), chi.URLParam(r, "principal_id"), req.OrganisationID, roleOf(req.Role))
		if err != nil {
			writeError(w, r, err, "assign principal")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"principal": target,
		})
	}
}
