package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/rs/zerolog/log"
)

// DefaultOrgID is the organisation created for the very first principal.
const DefaultOrgID = "default"

// Bootstrap resolves the principal behind a successful sign-in, creating it
// on first use. A principal without an organisation is resolved in order:
//   - the first principal of an empty system becomes org-admin of a new
//     "default" organisation
//   - otherwise the newest pending invite for its email is consumed
//   - otherwise it stays unassigned
//
// Principals whose email is a configured super-admin email are promoted.
func (s *Service) Bootstrap(ctx context.Context, principalID, email string) (*identity.Principal, error) {
	p, err := s.principals.Get(ctx, principalID)
	switch {
	case errors.Is(err, principals.ErrNotFound):
		p = &identity.Principal{ID: principalID, Email: email, Role: identity.RoleUnassigned}
		if err := s.principals.Create(ctx, p); err != nil {
			return nil, err
		}
		s.logAudit(s.auditor.LogUserSignup(ctx, p.Ref()))
	case err != nil:
		return nil, err
	}

	if s.superAdmins[p.Email] {
		if err := s.promote(ctx, p); err != nil {
			return nil, err
		}
	}

	if p.OrganisationID != "" {
		return p, nil
	}

	resolved, err := s.createDefaultOrg(ctx, p)
	if err != nil || resolved != nil {
		return resolved, err
	}

	resolved, err = s.consumePendingInvite(ctx, p)
	if err != nil || resolved != nil {
		return resolved, err
	}

	return p, nil
}

// createDefaultOrg returns nil without error when organisations already exist.
func (s *Service) createDefaultOrg(ctx context.Context, p *identity.Principal) (*identity.Principal, error) {
	existing, err := s.store.List(ctx, Collection, docstore.Query{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", err)
	}
	if len(existing) > 0 {
		return nil, nil
	}

	org, err := s.insert(ctx, CreateRequest{ID: DefaultOrgID, Name: "Default organisation"}, p.Ref())
	if err != nil {
		if errors.Is(err, ErrSlugConflict) {
			// Another first sign-in won the race.
			return nil, nil
		}
		return nil, err
	}

	role := identity.RoleOrgAdmin
	if p.Role == identity.RoleSuperAdmin {
		role = identity.RoleSuperAdmin
	}
	if err := s.principals.SetMembership(ctx, p.ID, role, org.ID); err != nil {
		return nil, err
	}
	s.logAudit(s.auditor.LogOrgCreated(ctx, org.ID, p.Ref(), org.Name))

	log.Info().
		Str("org_id", org.ID).
		Str("principal_id", p.ID).
		Msg("Default organisation created for first principal")

	updated := *p
	updated.Role = role
	updated.OrganisationID = org.ID
	return &updated, nil
}

// consumePendingInvite returns nil without error when no usable invite exists.
func (s *Service) consumePendingInvite(ctx context.Context, p *identity.Principal) (*identity.Principal, error) {
	invites, err := s.listInvites(ctx, map[string]any{
		"email":  p.Email,
		"status": InvitePending,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, v := range invites {
		if !v.invite.Pending(now) {
			continue
		}
		updated, err := s.consume(ctx, p, v)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, ErrMaxUsersReached), errors.Is(err, docstore.ErrConflict), errors.Is(err, ErrOrgNotFound):
			log.Warn().Err(err).
				Str("invite_id", v.invite.ID).
				Str("principal_id", p.ID).
				Msg("Skipping pending invite during sign-in")
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

// PromoteSuperAdmin makes an existing principal a super-admin. Its
// organisation membership is kept.
func (s *Service) PromoteSuperAdmin(ctx context.Context, principalID string) (*identity.Principal, error) {
	p, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if err := s.promote(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) promote(ctx context.Context, p *identity.Principal) error {
	if p.Role == identity.RoleSuperAdmin {
		return nil
	}
	if err := s.principals.SetMembership(ctx, p.ID, identity.RoleSuperAdmin, p.OrganisationID); err != nil {
		return err
	}
	p.Role = identity.RoleSuperAdmin
	s.logAudit(s.auditor.LogSuperAdminPromoted(ctx, p.Ref()))
	log.Info().Str("principal_id", p.ID).Msg("Principal promoted to super-admin")
	return nil
}
