package orgs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

func roleOf(s string) identity.Role {
	return identity.Role(s)
}

// HandleListMembers handles GET /api/v1/orgs/{org_id}/members
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		members, err := svc.ListMembers(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"))
		if err != nil {
			writeError(w, r, err, "list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleUpdateMemberRole handles PUT /api/v1/orgs/{org_id}/members/{principal_id}
func HandleUpdateMemberRole(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req UpdateMemberRoleRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		target, err := svc.SetMemberRole(ctx, principals.FromContext(ctx),
			chi.URLParam(r, "org_id"), chi.URLParam(r, "principal_id"), roleOf(req.Role))
		if err != nil {
			writeError(w, r, err, "update member role")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": MemberInfo{
				PrincipalID: target.ID,
				Email:       target.Email,
				Role:        target.Role,
				CreatedAt:   target.CreatedAt,
			},
		})
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{org_id}/members/{principal_id}
func HandleRemoveMember(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		err := svc.RemoveMember(ctx, principals.FromContext(ctx), chi.URLParam(r, "org_id"), chi.URLParam(r, "principal_id"))
		if err != nil {
			writeError(w, r, err, "remove member")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}
