package principals

import (
	"context"
	"testing"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateGetAndMembership(t *testing.T) {
	ctx := context.Background()
	s := NewStore(docstore.NewMemoryStore())

	p := &identity.Principal{ID: "p1", Email: "pilot@acme.test"}
	require.NoError(t, s.Create(ctx, p))
	require.ErrorIs(t, s.Create(ctx, p), docstore.ErrConflict)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, identity.RoleUnassigned, got.Role)
	require.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.SetMembership(ctx, "p1", identity.RoleUser, "acme"))
	members, err := s.ListByOrg(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, identity.RoleUser, members[0].Role)

	require.NoError(t, s.SetMembership(ctx, "p1", identity.RoleUnassigned, ""))
	members, err = s.ListByOrg(ctx, "acme")
	require.NoError(t, err)
	require.Empty(t, members)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.SetMembership(ctx, "missing", identity.RoleUser, "acme"), ErrNotFound)
}

func TestStore_UpdateCredentials(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemoryStore()
	s := NewStore(mem)

	p := &identity.Principal{ID: "p1", Email: "pilot@acme.test", Role: identity.RoleUser, OrganisationID: "acme"}
	require.NoError(t, s.Create(ctx, p))

	_, err := s.UpdateCredentials(ctx, p, identity.CredentialSet{PilotExpiry: "01/02/2027"})
	var ve *validation.Error
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "pilotExpiry", ve.Field)

	_, err = s.UpdateCredentials(ctx, p, identity.CredentialSet{PilotCert: "ppl"})
	require.ErrorAs(t, err, &ve)

	_, err = s.UpdateCredentials(ctx, nil, identity.CredentialSet{})
	require.ErrorIs(t, err, authz.ErrAccessDenied)

	updated, err := s.UpdateCredentials(ctx, p, identity.CredentialSet{
		PilotID:     " GBR-RP-1 ",
		PilotExpiry: "2027-01-02",
		PilotCert:   identity.CertGVC,
	})
	require.NoError(t, err)
	require.Equal(t, "GBR-RP-1", updated.Credentials.PilotID)

	stored, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, identity.CertGVC, stored.Credentials.PilotCert)
	require.Equal(t, "acme", stored.OrganisationID)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	statuses := Summarize(identity.CredentialSet{
		PilotID:        "P",
		PilotExpiry:    "2026-06-11",
		OperatorID:     "O",
		OperatorExpiry: "2026-05-01",
		OrgOperatorID:  "X",
	}, now)

	require.Len(t, statuses, 2)
	require.Equal(t, 10, statuses[0].DaysLeft)
	require.False(t, statuses[0].Expired)
	require.True(t, statuses[1].Expired)
}

func TestContext(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))
	p := &identity.Principal{ID: "p1"}
	require.Same(t, p, FromContext(WithPrincipal(context.Background(), p)))
}
