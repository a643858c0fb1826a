package orgs

import (
	"context"
	"errors"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
)

var (
	ErrMemberNotFound        = errors.New("member not found")
	ErrCannotDemoteLastAdmin = errors.New("cannot demote last organisation admin")
	ErrCannotRemoveLastAdmin = errors.New("cannot remove last organisation admin")
	ErrInvalidMemberRole     = errors.New("member role must be user or org-admin")
)

// ListMembers returns the members of an organisation, oldest first.
func (s *Service) ListMembers(ctx context.Context, actor *identity.Principal, orgID string) ([]MemberInfo, error) {
	if err := authz.Check(actor, authz.ViewOrganisation, orgID); err != nil {
		return nil, err
	}
	if _, _, err := s.load(ctx, orgID); err != nil {
		return nil, err
	}

	members, err := s.principals.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}

	out := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		out = append(out, MemberInfo{
			PrincipalID: m.ID,
			Email:       m.Email,
			Role:        m.Role,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) member(ctx context.Context, orgID, principalID string) (*identity.Principal, error) {
	p, err := s.principals.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	if !p.InOrganisation(orgID) {
		return nil, ErrMemberNotFound
	}
	return p, nil
}

func (s *Service) countAdmins(ctx context.Context, orgID string) (int, error) {
	members, err := s.principals.ListByOrg(ctx, orgID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if m.Role == identity.RoleOrgAdmin {
			n++
		}
	}
	return n, nil
}

// SetMemberRole promotes or demotes a member between user and org-admin.
// The last org-admin of an organisation cannot be demoted.
func (s *Service) SetMemberRole(ctx context.Context, actor *identity.Principal, orgID, principalID string, role identity.Role) (*identity.Principal, error) {
	if err := authz.Check(actor, authz.ChangeMemberRole, orgID); err != nil {
		return nil, err
	}
	if role != identity.RoleUser && role != identity.RoleOrgAdmin {
		return nil, ErrInvalidMemberRole
	}

	target, err := s.member(ctx, orgID, principalID)
	if err != nil {
		return nil, err
	}
	if target.Role == identity.RoleSuperAdmin {
		return nil, authz.ErrAccessDenied
	}
	if target.Role == role {
		return target, nil
	}

	if target.Role == identity.RoleOrgAdmin {
		admins, err := s.countAdmins(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, ErrCannotDemoteLastAdmin
		}
	}

	if err := s.principals.SetMembership(ctx, target.ID, role, orgID); err != nil {
		return nil, err
	}
	s.logAudit(s.auditor.LogOrgMemberRoleUpdated(ctx, orgID, actor.Ref(), target.ID, target.Role, role))

	target.Role = role
	return target, nil
}

// RemoveMember takes a principal out of the organisation, clearing both
// organisation and role.
func (s *Service) RemoveMember(ctx context.Context, actor *identity.Principal, orgID, principalID string) error {
	if err := authz.Check(actor, authz.ChangeMemberRole, orgID); err != nil {
		return err
	}

	target, err := s.member(ctx, orgID, principalID)
	if err != nil {
		return err
	}
	if target.Role == identity.RoleSuperAdmin {
		return authz.ErrAccessDenied
	}

	if target.Role == identity.RoleOrgAdmin {
		admins, err := s.countAdmins(ctx, orgID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return ErrCannotRemoveLastAdmin
		}
	}

	if err := s.principals.SetMembership(ctx, target.ID, identity.RoleUnassigned, ""); err != nil {
		return err
	}
	s.logAudit(s.auditor.LogOrgMemberRemoved(ctx, orgID, actor.Ref(), target.ID, target.Role))
	return nil
}
