package orgs

import (
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

// Collection holds one document per organisation, keyed by slug.
const Collection = "organisations"

// ExpiringSoonDays is the window in which an organisation expiry is flagged.
const ExpiringSoonDays = 30

// Path returns the document path of an organisation.
func Path(orgID string) string {
	return docstore.Join(Collection, orgID)
}

// Organisation represents a tenant in the system
type Organisation struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	OperatorID      string          `json:"operatorId"`
	ExpiryDate      string          `json:"expiryDate"`
	MaxUsers        int             `json:"maxUsers"`
	RiskThresholds  risk.Thresholds `json:"riskThresholds"`
	SlackWebhookURL string          `json:"slackWebhookUrl,omitempty"`
	CreatedBy       identity.Ref    `json:"createdBy"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ExpiryStatus is the derived state of an organisation's registration.
type ExpiryStatus string

const (
	ExpiryValid        ExpiryStatus = "valid"
	ExpiryExpiringSoon ExpiryStatus = "expiring-soon"
	ExpiryExpired      ExpiryStatus = "expired"
	ExpiryUnknown      ExpiryStatus = "unknown"
)

// Expiry derives the expiry status at now along with the days left.
func (o *Organisation) Expiry(now time.Time) (ExpiryStatus, int) {
	days, ok := identity.DaysLeft(o.ExpiryDate, now)
	switch {
	case !ok:
		return ExpiryUnknown, 0
	case days < 0:
		return ExpiryExpired, days
	case days <= ExpiringSoonDays:
		return ExpiryExpiringSoon, days
	default:
		return ExpiryValid, days
	}
}

// View is the API representation of an organisation. The webhook URL is a
// secret and only reported as configured or not.
type View struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	OperatorID      string          `json:"operatorId"`
	ExpiryDate      string          `json:"expiryDate"`
	ExpiryStatus    ExpiryStatus    `json:"expiryStatus"`
	DaysLeft        int             `json:"daysLeft"`
	MaxUsers        int             `json:"maxUsers"`
	RiskThresholds  risk.Thresholds `json:"riskThresholds"`
	SlackConfigured bool            `json:"slackConfigured"`
	CreatedBy       identity.Ref    `json:"createdBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ViewAt builds the API representation at now.
func (o *Organisation) ViewAt(now time.Time) View {
	status, days := o.Expiry(now)
	return View{
		ID:              o.ID,
		Name:            o.Name,
		OperatorID:      o.OperatorID,
		ExpiryDate:      o.ExpiryDate,
		ExpiryStatus:    status,
		DaysLeft:        days,
		MaxUsers:        o.MaxUsers,
		RiskThresholds:  o.RiskThresholds,
		SlackConfigured: o.SlackWebhookURL != "",
		CreatedBy:       o.CreatedBy,
		CreatedAt:       o.CreatedAt,
	}
}

// MemberInfo represents a member of an organisation with their details
type MemberInfo struct {
	PrincipalID string        `json:"principalId"`
	Email       string        `json:"email"`
	Role        identity.Role `json:"role"`
	CreatedAt   time.Time     `json:"createdAt"`
}
