package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

const inviteTTL = 7 * 24 * time.Hour

type CreateInviteRequest struct {
	Email string        `json:"email"`
	Role  identity.Role `json:"role"`
}

type CreateInviteResult struct {
	Invite *Invite
	Token  string
}

func (s *Service) listInvites(ctx context.Context, where map[string]any) ([]versionedInvite, error) {
	docs, err := s.store.List(ctx, InvitesCollection, docstore.Query{
		Where:   where,
		OrderBy: "createdAt",
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	out := make([]versionedInvite, 0, len(docs))
	for _, doc := range docs {
		var inv Invite
		if err := doc.Decode(&inv); err != nil {
			return nil, err
		}
		out = append(out, versionedInvite{invite: inv, version: doc.Version})
	}
	return out, nil
}

type versionedInvite struct {
	invite  Invite
	version int64
}

// seatsTaken counts members plus invites that can still be accepted.
func (s *Service) seatsTaken(ctx context.Context, orgID string) (int, error) {
	members, err := s.principals.ListByOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}
	pending, err := s.listInvites(ctx, map[string]any{
		"organisationId": orgID,
		"status":         InvitePending,
	})
	if err != nil {
		return 0, err
	}
	now := s.now()
	n := len(members)
	for _, p := range pending {
		if p.invite.Pending(now) {
			n++
		}
	}
	return n, nil
}

// CreateInvite issues an invite for email. Any earlier pending invite for the
// same email in the organisation is revoked. The returned token is only ever
// available here; the store keeps its hash.
func (s *Service) CreateInvite(ctx context.Context, actor *identity.Principal, orgID string, req CreateInviteRequest) (*CreateInviteResult, error) {
	if err := authz.Check(actor, authz.InviteUser, orgID); err != nil {
		return nil, err
	}

	email, err := validation.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Role == "" {
		req.Role = identity.RoleUser
	}
	if req.Role != identity.RoleUser && req.Role != identity.RoleOrgAdmin {
		return nil, ErrInvalidMemberRole
	}

	org, _, err := s.load(ctx, orgID)
	if err != nil {
		return nil, err
	}

	existing, err := s.listInvites(ctx, map[string]any{
		"organisationId": orgID,
		"email":          email,
		"status":         InvitePending,
	})
	if err != nil {
		return nil, err
	}

	if org.MaxUsers > 0 {
		taken, err := s.seatsTaken(ctx, orgID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		for _, e := range existing {
			if e.invite.Pending(now) {
				taken--
			}
		}
		if taken >= org.MaxUsers {
			return nil, ErrMaxUsersReached
		}
	}

	for _, e := range existing {
		if err := s.revoke(ctx, e, actor.ID); err != nil && !errors.Is(err, docstore.ErrConflict) {
			return nil, err
		}
	}

	token, err := NewInviteToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &Invite{
		ID:             ids.New(),
		OrganisationID: orgID,
		Email:          email,
		Role:           req.Role,
		TokenHash:      token.Hash(),
		Status:         InvitePending,
		InvitedBy:      actor.Ref(),
		CreatedAt:      now,
		ExpiresAt:      now.Add(inviteTTL),
	}
	if err := s.store.Put(ctx, InvitePath(inv.ID), inv, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logAudit(s.auditor.LogOrgInviteCreated(ctx, orgID, actor.Ref(), inv.ID, email, inv.Role))

	return &CreateInviteResult{Invite: inv, Token: string(token)}, nil
}

// ListInvites returns the invites of an organisation that can still be accepted.
func (s *Service) ListInvites(ctx context.Context, actor *identity.Principal, orgID string) ([]InviteListItem, error) {
	if err := authz.Check(actor, authz.InviteUser, orgID); err != nil {
		return nil, err
	}

	invites, err := s.listInvites(ctx, map[string]any{
		"organisationId": orgID,
		"status":         InvitePending,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]InviteListItem, 0, len(invites))
	for _, v := range invites {
		if !v.invite.Pending(now) {
			continue
		}
		out = append(out, InviteListItem{
			ID:             v.invite.ID,
			Email:          v.invite.Email,
			Role:           v.invite.Role,
			CreatedAt:      v.invite.CreatedAt,
			ExpiresAt:      v.invite.ExpiresAt,
			CreatedByEmail: v.invite.InvitedBy.Email,
		})
	}
	return out, nil
}

func (s *Service) getInvite(ctx context.Context, inviteID string) (*versionedInvite, error) {
	if inviteID == "" {
		return nil, ErrInviteNotFound
	}
	doc, err := s.store.Get(ctx, InvitePath(inviteID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	var inv Invite
	if err := doc.Decode(&inv); err != nil {
		return nil, err
	}
	return &versionedInvite{invite: inv, version: doc.Version}, nil
}

func (s *Service) revoke(ctx context.Context, v versionedInvite, by string) error {
	now := s.now()
	patch := map[string]any{
		"status":    InviteRevoked,
		"revokedBy": by,
		"revokedAt": now,
	}
	if err := s.store.Put(ctx, InvitePath(v.invite.ID), patch, docstore.Merge(), docstore.IfVersion(v.version)); err != nil {
		return fmt.Errorf("failed to revoke invite: %w", err)
	}
	return nil
}

// RevokeInvite revokes a pending invite of the organisation.
func (s *Service) RevokeInvite(ctx context.Context, actor *identity.Principal, orgID, inviteID string) error {
	if err := authz.Check(actor, authz.InviteUser, orgID); err != nil {
		return err
	}

	v, err := s.getInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if v.invite.OrganisationID != orgID {
		return ErrInviteNotFound
	}
	if v.invite.Status != InvitePending {
		return ErrInviteNotActive
	}

	if err := s.revoke(ctx, *v, actor.ID); err != nil {
		return err
	}
	s.logAudit(s.auditor.LogOrgInviteRevoked(ctx, orgID, actor.Ref(), inviteID))
	return nil
}

// AcceptInvite consumes the invite identified by token on behalf of actor.
// An invite is consumed at most once; a racing second accept gets
// docstore.ErrConflict.
func (s *Service) AcceptInvite(ctx context.Context, actor *identity.Principal, token string) (*identity.Principal, error) {
	if actor == nil {
		return nil, authz.ErrAccessDenied
	}
	parsed, ok := ParseInviteToken(token)
	if !ok {
		return nil, ErrInviteNotFound
	}

	found, err := s.listInvites(ctx, map[string]any{"tokenHash": parsed.Hash()})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrInviteNotFound
	}
	v := found[0]

	if v.invite.Email != actor.Email {
		return nil, ErrInviteEmailMismatch
	}
	return s.consume(ctx, actor, v)
}

// consume checks the invite and the principal, then marks the invite accepted
// and moves the principal into the organisation.
func (s *Service) consume(ctx context.Context, actor *identity.Principal, v versionedInvite) (*identity.Principal, error) {
	inv := v.invite
	now := s.now()

	switch {
	case inv.Status != InvitePending:
		return nil, ErrInviteNotActive
	case !now.Before(inv.ExpiresAt):
		return nil, ErrInviteExpired
	case actor.OrganisationID != "" && actor.OrganisationID != inv.OrganisationID:
		return nil, ErrAlreadyMember
	}

	org, _, err := s.load(ctx, inv.OrganisationID)
	if err != nil {
		return nil, err
	}
	if org.MaxUsers > 0 && !actor.InOrganisation(org.ID) {
		members, err := s.principals.ListByOrg(ctx, org.ID)
		if err != nil {
			return nil, err
		}
		if len(members) >= org.MaxUsers {
			return nil, ErrMaxUsersReached
		}
	}

	patch := map[string]any{
		"status":     InviteAccepted,
		"acceptedBy": actor.ID,
		"acceptedAt": now,
	}
	if err := s.store.Put(ctx, InvitePath(inv.ID), patch, docstore.Merge(), docstore.IfVersion(v.version)); err != nil {
		return nil, fmt.Errorf("failed to accept invite: %w", err)
	}

	role := inv.Role
	if actor.Role == identity.RoleSuperAdmin {
		role = identity.RoleSuperAdmin
	}
	if err := s.principals.SetMembership(ctx, actor.ID, role, inv.OrganisationID); err != nil {
		return nil, err
	}
	s.logAudit(s.auditor.LogOrgInviteAccepted(ctx, inv.OrganisationID, actor.Ref(), inv.ID))

	log.Info().
		Str("org_id", inv.OrganisationID).
		Str("principal_id", actor.ID).
		Str("role", string(role)).
		Msg("Invite accepted")

	updated := *actor
	updated.Role = role
	updated.OrganisationID = inv.OrganisationID
	return &updated, nil
}
