package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	mem        *docstore.MemoryStore
	principals *principals.Store
	svc        *Service
}

func newFixture(t *testing.T, superAdmins ...string) *fixture {
	t.Helper()
	mem := docstore.NewMemoryStore()
	ps := principals.NewStore(mem)
	svc := NewService(mem, ps, audit.NewWriter(mem), superAdmins)
	svc.now = func() time.Time { return testNow }
	return &fixture{mem: mem, principals: ps, svc: svc}
}

// seedOrg creates an organisation with one org-admin and returns the admin.
func (f *fixture) seedOrg(t *testing.T, orgID string, maxUsers int) *identity.Principal {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.insert(ctx, CreateRequest{ID: orgID, Name: orgID, MaxUsers: maxUsers}, identity.Ref{ID: "system"})
	require.NoError(t, err)
	return f.seedPrincipal(t, orgID+"-admin", orgID+"-admin@test.dev", identity.RoleOrgAdmin, orgID)
}

func (f *fixture) seedPrincipal(t *testing.T, id, email string, role identity.Role, orgID string) *identity.Principal {
	t.Helper()
	p := &identity.Principal{ID: id, Email: email, Role: role, OrganisationID: orgID, CreatedAt: testNow}
	require.NoError(t, f.principals.Create(context.Background(), p))
	return p
}

func TestExpiryStatus(t *testing.T) {
	tests := []struct {
		expiry string
		want   ExpiryStatus
	}{
		{"", ExpiryUnknown},
		{"not-a-date", ExpiryUnknown},
		{"2026-05-01", ExpiryExpired},
		{"2026-06-20", ExpiryExpiringSoon},
		{"2026-07-01", ExpiryExpiringSoon},
		{"2026-09-01", ExpiryValid},
	}
	for _, tt := range tests {
		t.Run(tt.expiry, func(t *testing.T) {
			org := Organisation{ExpiryDate: tt.expiry}
			status, _ := org.Expiry(testNow)
			require.Equal(t, tt.want, status)
		})
	}
}

func TestBootstrap_FirstPrincipalGetsDefaultOrg(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.Bootstrap(ctx, "p1", "first@test.dev")
	require.NoError(t, err)
	require.Equal(t, identity.RoleOrgAdmin, first.Role)
	require.Equal(t, DefaultOrgID, first.OrganisationID)

	org, err := f.svc.Lookup(ctx, DefaultOrgID)
	require.NoError(t, err)
	require.Equal(t, risk.DefaultThresholds(), org.RiskThresholds)

	second, err := f.svc.Bootstrap(ctx, "p2", "second@test.dev")
	require.NoError(t, err)
	require.Equal(t, identity.RoleUnassigned, second.Role)
	require.Empty(t, second.OrganisationID)

	again, err := f.svc.Bootstrap(ctx, "p1", "first@test.dev")
	require.NoError(t, err)
	require.Equal(t, DefaultOrgID, again.OrganisationID)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBootstrap_ConsumesPendingInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)

	_, err := f.svc.CreateInvite(ctx, admin, "acme", CreateInviteRequest{Email: "Pilot@Acme.test", Role: identity.RoleOrgAdmin})
	require.NoError(t, err)

	p, err := f.svc.Bootstrap(ctx, "p9", "pilot@acme.test")
	require.NoError(t, err)
	require.Equal(t, identity.RoleOrgAdmin, p.Role)
	require.Equal(t, "acme", p.OrganisationID)

	stored, err := f.principals.Get(ctx, "p9")
	require.NoError(t, err)
	require.Equal(t, "acme", stored.OrganisationID)

	invites, err := f.svc.ListInvites(ctx, admin, "acme")
	require.NoError(t, err)
	require.Empty(t, invites)
}

func TestBootstrap_PromotesSuperAdminEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, " Boss@Test.dev ")
	f.seedOrg(t, "acme", 0)

	p, err := f.svc.Bootstrap(ctx, "boss", "boss@test.dev")
	require.NoError(t, err)
	require.Equal(t, identity.RoleSuperAdmin, p.Role)

	orgs, err := f.svc.List(ctx, p)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
}

func TestCreate_RequiresSuperAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	boss := f.seedPrincipal(t, "boss", "boss@test.dev", identity.RoleSuperAdmin, "")
	pilot := f.seedPrincipal(t, "pilot", "pilot@test.dev", identity.RoleUnassigned, "")

	writes := f.mem.Writes()
	_, err := f.svc.Create(ctx, admin, CreateRequest{ID: "globex", Name: "Globex"})
	require.ErrorIs(t, err, authz.ErrAccessDenied)
	require.Equal(t, writes, f.mem.Writes())

	_, err = f.svc.Create(ctx, boss, CreateRequest{ID: "x", Name: "Globex"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)

	org, err := f.svc.Create(ctx, boss, CreateRequest{ID: "Globex", Name: "Globex", MaxUsers: 3, AdminPrincipalID: pilot.ID})
	require.NoError(t, err)
	require.Equal(t, "globex", org.ID)

	promoted, err := f.principals.Get(ctx, pilot.ID)
	require.NoError(t, err)
	require.Equal(t, identity.RoleOrgAdmin, promoted.Role)
	require.Equal(t, "globex", promoted.OrganisationID)

	_, err = f.svc.Create(ctx, boss, CreateRequest{ID: "globex", Name: "Again"})
	require.ErrorIs(t, err, ErrSlugConflict)
}

func TestUpdateSettings_DeniedFieldsWriteNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 5)
	user := f.seedPrincipal(t, "u1", "u1@test.dev", identity.RoleUser, "acme")
	outsider := f.seedOrg(t, "globex", 0)

	maxUsers := 50
	op := "OP-123"
	writes := f.mem.Writes()

	_, err := f.svc.UpdateSettings(ctx, admin, "acme", SettingsUpdate{OperatorID: &op, MaxUsers: &maxUsers})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	_, err = f.svc.UpdateSettings(ctx, user, "acme", SettingsUpdate{OperatorID: &op})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	_, err = f.svc.UpdateSettings(ctx, outsider, "acme", SettingsUpdate{OperatorID: &op})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	require.Equal(t, writes, f.mem.Writes())

	org, err := f.svc.Lookup(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 5, org.MaxUsers)
	require.Empty(t, org.OperatorID)
}

func TestUpdateSettings_AppliesAndAudits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 5)

	op := " OP-123 "
	hook := "https://hooks.slack.com/services/T/B/X"
	thresholds := risk.Thresholds{WindAmberMPH: 10, WindRedMPH: 20}

	org, err := f.svc.UpdateSettings(ctx, admin, "acme", SettingsUpdate{
		OperatorID:      &op,
		RiskThresholds:  &thresholds,
		SlackWebhookURL: &hook,
	})
	require.NoError(t, err)
	require.Equal(t, "OP-123", org.OperatorID)
	require.True(t, org.ViewAt(testNow).SlackConfigured)

	stored, err := f.svc.Lookup(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, thresholds, stored.RiskThresholds)
	require.Equal(t, 5, stored.MaxUsers)

	events, err := audit.NewReader(f.mem).ListByOrg(ctx, "acme", audit.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.EventOrgSettingsUpdated, events[0].Action)
	require.Contains(t, events[0].Meta, "operatorId")
	require.NotContains(t, events[0].Meta, "maxUsers")

	bad := risk.Thresholds{WindAmberMPH: 30, WindRedMPH: 20}
	_, err = f.svc.UpdateSettings(ctx, admin, "acme", SettingsUpdate{RiskThresholds: &bad})
	require.True(t, validation.IsValidationError(err))
}

func TestMembers_RoleChangesAndRemoval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	user := f.seedPrincipal(t, "u1", "u1@test.dev", identity.RoleUser, "acme")

	_, err := f.svc.SetMemberRole(ctx, admin, "acme", admin.ID, identity.RoleUser)
	require.ErrorIs(t, err, ErrCannotDemoteLastAdmin)
	require.ErrorIs(t, f.svc.RemoveMember(ctx, admin, "acme", admin.ID), ErrCannotRemoveLastAdmin)

	_, err = f.svc.SetMemberRole(ctx, user, "acme", admin.ID, identity.RoleUser)
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	_, err = f.svc.SetMemberRole(ctx, admin, "acme", user.ID, identity.RoleSuperAdmin)
	require.ErrorIs(t, err, ErrInvalidMemberRole)

	promoted, err := f.svc.SetMemberRole(ctx, admin, "acme", user.ID, identity.RoleOrgAdmin)
	require.NoError(t, err)
	require.Equal(t, identity.RoleOrgAdmin, promoted.Role)

	_, err = f.svc.SetMemberRole(ctx, admin, "acme", admin.ID, identity.RoleUser)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveMember(ctx, promoted, "acme", admin.ID))
	removed, err := f.principals.Get(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, identity.RoleUnassigned, removed.Role)
	require.Empty(t, removed.OrganisationID)

	members, err := f.svc.ListMembers(ctx, promoted, "acme")
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.ErrorIs(t, f.svc.RemoveMember(ctx, promoted, "acme", "nobody"), ErrMemberNotFound)
}

func TestAssignPrincipal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := f.seedOrg(t, "acme", 0)
	boss := f.seedPrincipal(t, "boss", "boss@test.dev", identity.RoleSuperAdmin, "")
	pilot := f.seedPrincipal(t, "pilot", "pilot@test.dev", identity.RoleUnassigned, "")

	_, err := f.svc.AssignPrincipal(ctx, admin, pilot.ID, "acme", identity.RoleUser)
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	_, err = f.svc.AssignPrincipal(ctx, boss, pilot.ID, "missing", identity.RoleUser)
	require.ErrorIs(t, err, ErrOrgNotFound)

	assigned, err := f.svc.AssignPrincipal(ctx, boss, pilot.ID, "acme", identity.RoleUser)
	require.NoError(t, err)
	require.Equal(t, "acme", assigned.OrganisationID)

	cleared, err := f.svc.AssignPrincipal(ctx, boss, pilot.ID, "", identity.RoleUser)
	require.NoError(t, err)
	require.Equal(t, identity.RoleUnassigned, cleared.Role)
}
