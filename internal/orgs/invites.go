package orgs

import (
	"errors"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
)

var (
	ErrInviteNotFound      = errors.New("invite not found")
	ErrInviteExpired       = errors.New("invite expired")
	ErrInviteNotActive     = errors.New("invite not active")
	ErrInviteEmailMismatch = errors.New("invite email does not match principal")
	ErrMaxUsersReached     = errors.New("organisation has reached its user limit")
	ErrAlreadyMember       = errors.New("principal already belongs to an organisation")
)

// InviteStatus is the lifecycle state of an invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRevoked  InviteStatus = "revoked"
)

// Invite is a pending offer of membership for an email address.
type Invite struct {
	ID             string        `json:"id"`
	OrganisationID string        `json:"organisationId"`
	Email          string        `json:"email"`
	Role           identity.Role `json:"role"`
	TokenHash      string        `json:"tokenHash"`
	Status         InviteStatus  `json:"status"`
	InvitedBy      identity.Ref  `json:"invitedBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
	AcceptedBy     string        `json:"acceptedBy,omitempty"`
	AcceptedAt     *time.Time    `json:"acceptedAt,omitempty"`
	RevokedBy      string        `json:"revokedBy,omitempty"`
	RevokedAt      *time.Time    `json:"revokedAt,omitempty"`
}

type InviteListItem struct {
	ID             string        `json:"id"`
	Email          string        `json:"email"`
	Role           identity.Role `json:"role"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
	CreatedByEmail string        `json:"createdByEmail"`
}

// InvitesCollection holds every invite of every organisation so that a
// signing-in principal can be matched by email or token.
const InvitesCollection = "invites"

// InvitePath returns the document path of an invite.
func InvitePath(id string) string {
	return docstore.Join(InvitesCollection, id)
}

// Pending reports whether the invite can still be accepted at now.
func (i *Invite) Pending(now time.Time) bool {
	return i.Status == InvitePending && now.Before(i.ExpiresAt)
}
