package reports

import (
	"errors"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
)

var (
	// ErrReportNotFound is returned when no report exists at the reference
	ErrReportNotFound = errors.New("report not found")

	// ErrReportDeleted is returned when editing a soft-deleted report
	ErrReportDeleted = errors.New("report has been deleted")

	// ErrOverrideNotAllowed is returned when overriding a report whose decision is not NO-GO
	ErrOverrideNotAllowed = errors.New("only NO-GO reports can be overridden")

	// ErrOverrideExists is returned when a report already carries an override
	ErrOverrideExists = errors.New("report already has an override")

	// ErrEvidenceTooLarge is returned when an evidence upload exceeds the size cap
	ErrEvidenceTooLarge = errors.New("evidence exceeds maximum size")
)

// FlightStatus is derived from the flight window and the current time.
type FlightStatus string

const (
	StatusFuture   FlightStatus = "FUTURE"
	StatusCurrent  FlightStatus = "CURRENT"
	StatusArchived FlightStatus = "ARCHIVED"
)

// Override supersedes a NO-GO decision. It is immutable once written.
type Override struct {
	Reason            string       `json:"reason"`
	EvidenceReference string       `json:"evidenceReference,omitempty"`
	ApprovedBy        identity.Ref `json:"approvedBy"`
	ApprovedAt        time.Time    `json:"approvedAt"`
}

// Report is a committed risk decision together with its inputs. Findings,
// decision and credential snapshot never change after commit; only the
// organisation copy's flight window, project tag and deletion flags do.
type Report struct {
	ID                 string                 `json:"id"`
	EvaluationID       string                 `json:"evaluationId"`
	Findings           []risk.Finding         `json:"findings"`
	Decision           risk.Decision          `json:"decision"`
	Location           risk.Area              `json:"location"`
	FlightWindow       risk.Window            `json:"flightWindow"`
	ProjectTag         string                 `json:"projectTag"`
	CredentialSnapshot identity.CredentialSet `json:"credentialSnapshot"`
	CreatedBy          identity.Ref           `json:"createdBy"`
	CreatedAt          time.Time              `json:"createdAt"`

	// OrganisationID is set on organisation copies.
	OrganisationID string `json:"organisationId,omitempty"`
	// PersonalRef links an organisation copy to the creator's personal copy.
	PersonalRef string `json:"personalRef,omitempty"`
	// OrgReportID links a personal copy to its organisation copy.
	OrgReportID string `json:"orgReportId,omitempty"`
	// OrgID of the organisation copy, kept on the personal copy.
	LinkedOrgID string `json:"linkedOrgId,omitempty"`

	Deleted   bool          `json:"deleted"`
	DeletedAt *time.Time    `json:"deletedAt,omitempty"`
	DeletedBy *identity.Ref `json:"deletedBy,omitempty"`

	Override *Override `json:"override,omitempty"`
}

// FlightStatus derives the status of the flight window at now.
func (r *Report) FlightStatus(now time.Time) FlightStatus {
	switch {
	case now.Before(r.FlightWindow.Start):
		return StatusFuture
	case now.After(r.FlightWindow.End):
		return StatusArchived
	default:
		return StatusCurrent
	}
}

// View is a report with its derived flight status.
type View struct {
	*Report
	FlightStatus FlightStatus `json:"flightStatus"`
}

// ViewAt builds the API representation at now.
func (r *Report) ViewAt(now time.Time) View {
	return View{Report: r, FlightStatus: r.FlightStatus(now)}
}

// Ref addresses a report. An empty OrgID addresses a personal copy of the
// acting principal.
type Ref struct {
	OrgID    string
	ReportID string
}

// PersonalCollection returns the report collection of a principal.
func PersonalCollection(principalID string) string {
	return docstore.Join("principals", principalID, "reports")
}

// OrgCollection returns the report collection of an organisation.
func OrgCollection(orgID string) string {
	return docstore.Join("organisations", orgID, "reports")
}

// EvidenceCollection returns where override evidence is kept: under the
// organisation, or under the principal for personal reports.
func EvidenceCollection(orgID, principalID string) string {
	if orgID != "" {
		return docstore.Join("organisations", orgID, "evidence")
	}
	return docstore.Join("principals", principalID, "evidence")
}

// EvidenceContentCollection holds the uploaded bytes matching the records of
// EvidenceCollection, keyed by the same id.
func EvidenceContentCollection(orgID, principalID string) string {
	return EvidenceCollection(orgID, principalID) + "-content"
}
