package risk

import "fmt"

// Category is one of the fixed risk categories every evaluation must cover.
type Category string

const (
	CategoryWeather          Category = "weather"
	CategoryNOTAMs           Category = "notams"
	CategorySolarActivity    Category = "solar-activity"
	CategoryAirspace         Category = "airspace-classification"
	CategoryGroundHazards    Category = "ground-hazards"
	CategoryNearestCare      Category = "nearest-care"
	CategoryCredentialExpiry Category = "credential-expiry"
)

var registry = []Category{
	CategoryWeather,
	CategoryNOTAMs,
	CategorySolarActivity,
	CategoryAirspace,
	CategoryGroundHazards,
	CategoryNearestCare,
	CategoryCredentialExpiry,
}

// Categories returns the registry in display order.
func Categories() []Category {
	out := make([]Category, len(registry))
	copy(out, registry)
	return out
}

// IsValid returns true if c is in the registry.
func (c Category) IsValid() bool {
	for _, known := range registry {
		if c == known {
			return true
		}
	}
	return false
}

// Severity is the qualitative risk level of a finding.
type Severity string

const (
	SeverityGreen   Severity = "green"
	SeverityAmber   Severity = "amber"
	SeverityRed     Severity = "red"
	SeverityUnknown Severity = "unknown"
)

// IsValid returns true if s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityGreen, SeverityAmber, SeverityRed, SeverityUnknown:
		return true
	default:
		return false
	}
}

// Finding is one provider's classified observation for a category.
type Finding struct {
	Category      Category `json:"category"`
	Severity      Severity `json:"severity"`
	Detail        string   `json:"detail"`
	ReferenceLink string   `json:"referenceLink,omitempty"`
	ErrorReason   string   `json:"errorReason,omitempty"`
}

// Failed returns the finding recorded when a provider could not produce one.
func Failed(category Category, reason string) Finding {
	return Finding{
		Category:    category,
		Severity:    SeverityUnknown,
		Detail:      fmt.Sprintf("%s check unavailable, review manually", category),
		ErrorReason: reason,
	}
}

// Decision is the aggregate flight outcome.
type Decision string

const (
	DecisionGo      Decision = "GO"
	DecisionCaution Decision = "CAUTION"
	DecisionNoGo    Decision = "NO-GO"
)

// IsValid returns true if d is a known decision.
func (d Decision) IsValid() bool {
	return d == DecisionGo || d == DecisionCaution || d == DecisionNoGo
}

// Decide applies the decision rule: any red is NO-GO, otherwise any amber is
// CAUTION, otherwise GO. Unknown severities never escalate.
func Decide(findings []Finding) Decision {
	amber := false
	for _, f := range findings {
		switch f.Severity {
		case SeverityRed:
			return DecisionNoGo
		case SeverityAmber:
			amber = true
		}
	}
	if amber {
		return DecisionCaution
	}
	return DecisionGo
}
