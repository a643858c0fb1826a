package authz

import (
	"errors"

	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/rs/zerolog/log"
)

// ErrAccessDenied is returned when a principal lacks the capability for an action.
var ErrAccessDenied = errors.New("access denied")

// Action is an operation checked against the capability matrix.
type Action string

const (
	ViewOwnReports       Action = "view-own-reports"
	ViewOrgReports       Action = "view-org-reports"
	EditOrgReport        Action = "edit-org-report"
	DeleteOrgReport      Action = "delete-org-report"
	OverrideOrgReport    Action = "override-org-report"
	InviteUser           Action = "invite-user"
	ChangeMemberRole     Action = "change-member-role"
	CreateOrganisation   Action = "create-organisation"
	SetMaxUsers          Action = "set-max-users"
	SetOrgOperator       Action = "set-org-operator"
	SetRiskThresholds    Action = "set-risk-thresholds"
	AssignOrganisation   Action = "assign-organisation"
	ViewOrgAudit         Action = "view-org-audit"
	ViewOrganisation     Action = "view-organisation"
	ListAllOrganisations Action = "list-all-organisations"
	UpdateOwnCredentials Action = "update-own-credentials"
)

var matrix = map[Action]map[identity.Role]bool{
	ViewOwnReports:       allRoles(),
	UpdateOwnCredentials: allRoles(),
	ViewOrgReports:       roles(identity.RoleUser, identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	ViewOrganisation:     roles(identity.RoleUser, identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	EditOrgReport:        roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	DeleteOrgReport:      roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	OverrideOrgReport:    roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	InviteUser:           roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	ChangeMemberRole:     roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	SetOrgOperator:       roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	SetRiskThresholds:    roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	ViewOrgAudit:         roles(identity.RoleOrgAdmin, identity.RoleSuperAdmin),
	CreateOrganisation:   roles(identity.RoleSuperAdmin),
	SetMaxUsers:          roles(identity.RoleSuperAdmin),
	AssignOrganisation:   roles(identity.RoleSuperAdmin),
	ListAllOrganisations: roles(identity.RoleSuperAdmin),
}

// orgScoped actions require membership of the target organisation unless the
// principal is a super-admin.
var orgScoped = map[Action]bool{
	ViewOrgReports:    true,
	ViewOrganisation:  true,
	EditOrgReport:     true,
	DeleteOrgReport:   true,
	OverrideOrgReport: true,
	InviteUser:        true,
	ChangeMemberRole:  true,
	SetOrgOperator:    true,
	SetRiskThresholds: true,
	ViewOrgAudit:      true,
	SetMaxUsers:       true,
}

func allRoles() map[identity.Role]bool {
	return roles(identity.RoleUnassigned, identity.RoleUser, identity.RoleOrgAdmin, identity.RoleSuperAdmin)
}

func roles(rs ...identity.Role) map[identity.Role]bool {
	m := make(map[identity.Role]bool, len(rs))
	for _, r := range rs {
		m[r] = true
	}
	return m
}

// Allowed reports whether role may perform action, ignoring organisation scope.
func Allowed(role identity.Role, action Action) bool {
	return matrix[action][role]
}

// Check verifies that p may perform action against the organisation orgID.
// orgID is ignored for actions that are not organisation scoped.
// Unknown actions and nil principals are denied.
func Check(p *identity.Principal, action Action, orgID string) error {
	if p == nil {
		return ErrAccessDenied
	}

	if !Allowed(p.Role, action) {
		log.Warn().
			Str("principal_id", p.ID).
			Str("role", string(p.Role)).
			Str("action", string(action)).
			Str("org_id", orgID).
			Msg("Authorization denied: role lacks capability")
		return ErrAccessDenied
	}

	if orgScoped[action] && p.Role != identity.RoleSuperAdmin {
		if orgID == "" || !p.InOrganisation(orgID) {
			log.Warn().
				Str("principal_id", p.ID).
				Str("action", string(action)).
				Str("org_id", orgID).
				Msg("Authorization denied: principal not in organisation")
			return ErrAccessDenied
		}
	}

	return nil
}
