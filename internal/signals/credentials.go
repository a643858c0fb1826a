package signals

import (
	"context"
	"fmt"
	"strings"

	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

// ExpiryWarningDays is how long after the flight a credential must remain
// valid to avoid a caution.
const ExpiryWarningDays = 14

// CredentialExpiry checks the pilot and operator registrations against the
// flight window.
type CredentialExpiry struct{}

func (c *CredentialExpiry) Category() risk.Category { return risk.CategoryCredentialExpiry }

func (c *CredentialExpiry) Evaluate(_ context.Context, req risk.Request) risk.Finding {
	return classifyCredentials(req.Credentials, req.Window)
}

func classifyCredentials(creds identity.CredentialSet, window risk.Window) risk.Finding {
	f := risk.Finding{Category: risk.CategoryCredentialExpiry}

	var missing []string
	if creds.PilotID == "" {
		missing = append(missing, "pilot id")
	}
	if creds.OperatorID == "" {
		missing = append(missing, "operator id")
	}
	if len(missing) > 0 {
		f.Severity = risk.SeverityRed
		f.Detail = "Missing " + strings.Join(missing, " and ")
		return f
	}

	flightEnd := window.End.UTC()
	warnUntil := flightEnd.AddDate(0, 0, ExpiryWarningDays)

	var expired, expiring []string
	for _, cred := range creds.Held() {
		// A credential is valid through the whole of its expiry date.
		validUntil := cred.Expiry.AddDate(0, 0, 1)
		switch {
		case validUntil.Before(flightEnd) || validUntil.Equal(flightEnd):
			expired = append(expired, fmt.Sprintf("%s %s expired %s", cred.Name, cred.ID, cred.Expiry.Format(identity.DateLayout)))
		case validUntil.Before(warnUntil):
			expiring = append(expiring, fmt.Sprintf("%s %s expires %s", cred.Name, cred.ID, cred.Expiry.Format(identity.DateLayout)))
		}
	}

	switch {
	case len(expired) > 0:
		f.Severity = risk.SeverityRed
		f.Detail = "Expired before flight ends: " + strings.Join(expired, "; ")
	case len(expiring) > 0:
		f.Severity = risk.SeverityAmber
		f.Detail = "Expiring soon: " + strings.Join(expiring, "; ")
	case creds.PilotExpiry == "" || creds.OperatorExpiry == "":
		f.Severity = risk.SeverityAmber
		f.Detail = "Credential expiry dates not recorded"
	default:
		f.Severity = risk.SeverityGreen
		f.Detail = "Pilot and operator credentials valid"
	}
	return f
}
