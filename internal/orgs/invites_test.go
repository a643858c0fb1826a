package orgs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/stretchr/testify/require"
)

func TestInviteToken(t *testing.T) {
	token, err := NewInviteToken()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(token), InviteTokenPrefix))
	require.Len(t, token.Hash(), 64)
	require.NotContains(t, token.Hash(), string(token))

	parsed, ok := ParseInviteToken("  " + string(token) + "\n")
	require.True(t, ok)
	require.Equal(t, token.Hash(), parsed.Hash())

	for _, raw := range []string{
		"",
		"fgi_" + string(token)[len(InviteTokenPrefix):],
		InviteTokenPrefix + "short",
		InviteTokenPrefix + "!!!not-base64!!!",
	} {
		_, ok := ParseInviteToken(raw)
		require.False(t, ok, raw)
	}
}

func TestAcceptInvite_ConsumedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	pilot := f.seedPrincipal(t, "pilot", "pilot@test.dev", identity.RoleUnassigned, "")
	other := f.seedPrincipal(t, "other", "other@test.dev", identity.RoleUnassigned, "")

	res, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "pilot@test.dev"})
	require.NoError(t, err)
	require.Equal(t, identity.RoleUser, res.Invite.Role)

	_, err = f.svc.AcceptInvite(ctx, other, res.Token)
	require.ErrorIs(t, err, ErrInviteEmailMismatch)

	joined, err := f.svc.AcceptInvite(ctx, pilot, res.Token)
	require.NoError(t, err)
	require.Equal(t, "acme", joined.OrganisationID)
	require.Equal(t, identity.RoleUser, joined.Role)

	_, err = f.svc.AcceptInvite(ctx, pilot, res.Token)
	require.ErrorIs(t, err, ErrInviteNotActive)

	_, err = f.svc.AcceptInvite(ctx, pilot, InviteTokenPrefix+"garbage")
	require.ErrorIs(t, err, ErrInviteNotFound)
}

func TestAcceptInvite_Expired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	pilot := f.seedPrincipal(t, "pilot", "pilot@test.dev", identity.RoleUnassigned, "")

	res, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "pilot@test.dev"})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return testNow.Add(inviteTTL + time.Minute) }
	_, err = f.svc.AcceptInvite(ctx, pilot, res.Token)
	require.ErrorIs(t, err, ErrInviteExpired)

	unchanged, err := f.principals.Get(ctx, pilot.ID)
	require.NoError(t, err)
	require.Empty(t, unchanged.OrganisationID)
}

func TestCreateInvite_QuotaAndReissue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 2)
	user := f.seedPrincipal(t, "u1", "u1@test.dev", identity.RoleUser, "acme")

	writes := f.mem.Writes()
	_, err := f.svc.CreateInvite(ctx, user, "acme", CreateInviteRequest{Email: "new@test.dev"})
	require.ErrorIs(t, err, authz.ErrAccessDenied)
	require.Equal(t, writes, f.mem.Writes())

	_, err = f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "new@test.dev"})
	require.ErrorIs(t, err, ErrMaxUsersReached)

	require.NoError(t, f.svc.RemoveMember(ctx, admin, "acme", user.ID))

	first, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "new@test.dev"})
	require.NoError(t, err)

	// Reissuing to the same email replaces the pending invite instead of
	// taking another seat.
	second, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "new@test.dev"})
	require.NoError(t, err)

	invites, err := f.svc.ListInvites(ctx, admin, "acme")
	require.NoError(t, err)
	require.Len(t, invites, 1)
	require.Equal(t, second.Invite.ID, invites[0].ID)
	require.Equal(t, admin.Email, invites[0].CreatedByEmail)

	newcomer := f.seedPrincipal(t, "n1", "new@test.dev", identity.RoleUnassigned, "")
	_, err = f.svc.AcceptInvite(ctx, newcomer, first.Token)
	require.ErrorIs(t, err, ErrInviteNotActive)

	_, err = f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "third@test.dev"})
	require.ErrorIs(t, err, ErrMaxUsersReached)
}

func TestRevokeInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	outsider := f.seedOrg(t, "globex", 0)

	res, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "pilot@test.dev"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.RevokeInvite(ctx, outsider, "acme", res.Invite.ID), authz.ErrAccessDenied)
	require.ErrorIs(t, f.svc.RevokeInvite(ctx, outsider, "globex", res.Invite.ID), ErrInviteNotFound)

	require.NoError(t, f.svc.RevokeInvite(ctx, admin, "acme", res.Invite.ID))
	require.ErrorIs(t, f.svc.RevokeInvite(ctx, admin, "acme", res.Invite.ID), ErrInviteNotActive)

	doc, err := f.mem.Get(ctx, InvitePath(res.Invite.ID))
	require.NoError(t, err)
	var inv Invite
	require.NoError(t, doc.Decode(&inv))
	require.Equal(t, InviteRevoked, inv.Status)
	require.Equal(t, admin.ID, inv.RevokedBy)
}

func TestHandlers_SettingsDeniedAndMembersListed(t *testing.T) {
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	user := f.seedPrincipal(t, "u1", "u1@test.dev", identity.RoleUser, "acme")

	as := func(p *identity.Principal) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(principals.WithPrincipal(r.Context(), p)))
			})
		}
	}

	router := func(p *identity.Principal) http.Handler {
		r := chi.NewRouter()
		r.Use(as(p))
		r.Put("/api/v1/orgs/{org_id}/settings", HandleUpdateSettings(f.svc))
		r.Get("/api/v1/orgs/{org_id}/members", HandleListMembers(f.svc))
		r.Get("/api/v1/orgs/{org_id}", HandleGet(f.svc))
		return r
	}

	writes := f.mem.Writes()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/orgs/acme/settings", strings.NewReader(`{"maxUsers": 99}`))
	rec := httptest.NewRecorder()
	router(user).ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), `"access_denied"`)
	require.Equal(t, writes, f.mem.Writes())

	rec = httptest.NewRecorder()
	router(admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orgs/acme/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Members []MemberInfo `json:"members"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Members, 2)

	rec = httptest.NewRecorder()
	router(admin).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orgs/globex", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	_, err := f.mem.Get(context.Background(), Path("acme"))
	require.NoError(t, err)
	_, err = f.mem.Get(context.Background(), Path("globex"))
	require.ErrorIs(t, err, docstore.ErrNotFound)
}
