package identity

import (
	"math"
	"time"
)

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleUser       Role = "user"
	RoleOrgAdmin   Role = "org-admin"
	RoleSuperAdmin Role = "super-admin"
)

// IsValid returns true if the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUnassigned, RoleUser, RoleOrgAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin returns true for roles that administer an organisation.
func (r Role) IsAdmin() bool {
	return r == RoleOrgAdmin || r == RoleSuperAdmin
}

// PilotCert is the pilot certification level.
type PilotCert string

const (
	CertNone  PilotCert = "non"
	CertA2CoC PilotCert = "a2coc"
	CertGVC   PilotCert = "gvc"
)

// IsValid returns true if the certification level is known.
func (c PilotCert) IsValid() bool {
	return c == CertNone || c == CertA2CoC || c == CertGVC
}

// DateLayout is the calendar date format used for credential and organisation expiry dates.
const DateLayout = "2006-01-02"

// CredentialSet holds the pilot and operator registrations of a principal.
type CredentialSet struct {
	PilotID           string    `json:"pilotId"`
	PilotExpiry       string    `json:"pilotExpiry"`
	PilotCert         PilotCert `json:"pilotCert"`
	OperatorID        string    `json:"operatorId"`
	OperatorExpiry    string    `json:"operatorExpiry"`
	OrgOperatorID     string    `json:"orgOperatorId"`
	OrgOperatorExpiry string    `json:"orgOperatorExpiry"`
}

// Credential is a single held registration with its parsed expiry.
type Credential struct {
	Name   string
	ID     string
	Expiry time.Time
}

// Held returns the credentials that carry both an id and a parseable expiry date.
func (c CredentialSet) Held() []Credential {
	candidates := []struct {
		name, id, expiry string
	}{
		{"pilot", c.PilotID, c.PilotExpiry},
		{"operator", c.OperatorID, c.OperatorExpiry},
		{"organisation operator", c.OrgOperatorID, c.OrgOperatorExpiry},
	}

	var held []Credential
	for _, cand := range candidates {
		if cand.id == "" || cand.expiry == "" {
			continue
		}
		expiry, err := time.Parse(DateLayout, cand.expiry)
		if err != nil {
			continue
		}
		held = append(held, Credential{Name: cand.name, ID: cand.id, Expiry: expiry})
	}
	return held
}

// DaysLeft returns the whole days between now and the given date, rounded up.
// ok is false when the date is empty or malformed.
func DaysLeft(date string, now time.Time) (days int, ok bool) {
	if date == "" {
		return 0, false
	}
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0, false
	}
	return int(math.Ceil(t.Sub(now).Hours() / 24)), true
}

// Principal is a signed-in identity with its role and organisation attributes.
type Principal struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Role           Role          `json:"role"`
	OrganisationID string        `json:"organisationId,omitempty"`
	Credentials    CredentialSet `json:"credentials"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Ref identifies the principal responsible for a change.
type Ref struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Ref returns the id and email of the principal.
func (p *Principal) Ref() Ref {
	return Ref{ID: p.ID, Email: p.Email}
}

// InOrganisation returns true if the principal belongs to orgID.
func (p *Principal) InOrganisation(orgID string) bool {
	return p.OrganisationID != "" && p.OrganisationID == orgID
}
