package orgs

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

// acceptPath is the client route an invitee follows; the token rides in the
// query string.
const acceptPath = "/invites/accept"

// IssuedInvite is returned exactly once, when the invite is created. The raw
// token is not stored and cannot be recovered later.
type IssuedInvite struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Role      identity.Role `json:"role"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Token     string        `json:"token"`
	AcceptURL string        `json:"acceptUrl"`
}

func issued(res *CreateInviteResult) IssuedInvite {
	q := url.Values{"token": {res.Token}}
	return IssuedInvite{
		ID:        res.Invite.ID,
		Email:     res.Invite.Email,
		Role:      res.Invite.Role,
		ExpiresAt: res.Invite.ExpiresAt.UTC(),
		Token:     res.Token,
		AcceptURL: acceptPath + "?" + q.Encode(),
	}
}

// HandleCreateInvite handles POST /api/v1/orgs/{org_id}/invites.
func HandleCreateInvite(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateInviteRequest
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		actor := principals.FromContext(r.Context())
		res, err := svc.CreateInvite(r.Context(), actor, chi.URLParam(r, "org_id"), req)
		if err != nil {
			writeError(w, r, err, "create invite")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{"invite": issued(res)})
	}
}

// HandleListInvites handles GET /api/v1/orgs/{org_id}/invites.
func HandleListInvites(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := principals.FromContext(r.Context())
		invites, err := svc.ListInvites(r.Context(), actor, chi.URLParam(r, "org_id"))
		if err != nil {
			writeError(w, r, err, "list invites")
			return
		}
		if invites == nil {
			invites = []InviteListItem{}
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": invites,
			"count":   len(invites),
		})
	}
}

// HandleRevokeInvite handles DELETE /api/v1/orgs/{org_id}/invites/{invite_id}.
func HandleRevokeInvite(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := principals.FromContext(r.Context())
		inviteID := chi.URLParam(r, "invite_id")
		if err := svc.RevokeInvite(r.Context(), actor, chi.URLParam(r, "org_id"), inviteID); err != nil {
			writeError(w, r, err, "revoke invite")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"id": inviteID, "revoked": true})
	}
}

// HandleAcceptInvite handles POST /api/v1/invites/accept. The token may come
// in the body or, for links pasted straight from the invite, the query.
func HandleAcceptInvite(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if r.ContentLength != 0 && !apperrors.ReadJSON(w, r, &req) {
			return
		}
		token := strings.TrimSpace(req.Token)
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			apperrors.WriteInvalidField(w, r, "token", "Token is required")
			return
		}

		p, err := svc.AcceptInvite(r.Context(), principals.FromContext(r.Context()), token)
		if err != nil {
			writeError(w, r, err, "accept invite")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"principal": p})
	}
}
