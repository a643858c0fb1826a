package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/history"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
	"github.com/joffchandler/Sentinel-flight-ops/internal/notify"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

// DefaultMaxEvidenceBytes caps evidence uploads when no limit is configured.
const DefaultMaxEvidenceBytes = 10 << 20

// Organisations resolves the organisation a report belongs to.
type Organisations interface {
	Lookup(ctx context.Context, orgID string) (*orgs.Organisation, error)
}

// Notifier delivers report notifications. Implementations must not block
// for long and never fail the caller.
type Notifier interface {
	PostNoGo(ctx context.Context, webhookURL string, msg notify.NoGoMessage)
	PostOverride(ctx context.Context, webhookURL string, msg notify.OverrideMessage)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Store            docstore.Store
	Ledger           *history.Ledger
	Auditor          *audit.Writer
	Orgs             Organisations
	Notifier         Notifier
	BaseURL          string
	MaxEvidenceBytes int64
}

// Service commits, reads and edits reports.
type Service struct {
	store            docstore.Store
	ledger           *history.Ledger
	auditor          *audit.Writer
	orgs             Organisations
	notifier         Notifier
	baseURL          string
	maxEvidenceBytes int64
	now              func() time.Time
}

// NewService creates a report service.
func NewService(d Deps) *Service {
	if d.MaxEvidenceBytes <= 0 {
		d.MaxEvidenceBytes = DefaultMaxEvidenceBytes
	}
	return &Service{
		store:            d.Store,
		ledger:           d.Ledger,
		auditor:          d.Auditor,
		orgs:             d.Orgs,
		notifier:         d.Notifier,
		baseURL:          strings.TrimRight(d.BaseURL, "/"),
		maxEvidenceBytes: d.MaxEvidenceBytes,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// CommitRequest carries a decided evaluation to persist.
type CommitRequest struct {
	Principal  *identity.Principal
	Outcome    risk.Outcome
	Location   risk.Area
	Window     risk.Window
	ProjectTag string
	// Override is attached before persistence. It is only valid for NO-GO.
	Override *OverrideRequest
}

// Committed is the result of a commit. Org is nil for principals without an
// organisation.
type Committed struct {
	Personal *Report        `json:"personal"`
	Org      *Report        `json:"org,omitempty"`
	History  *history.Entry `json:"-"`
}

func (r *CommitRequest) validate() error {
	if !r.Outcome.Decision.IsValid() {
		return validation.Invalid("decision", "unknown decision")
	}
	if len(r.Outcome.Findings) == 0 {
		return validation.Required("findings")
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	if err := r.Window.Validate(); err != nil {
		return err
	}
	r.ProjectTag = strings.TrimSpace(r.ProjectTag)
	if r.Override != nil {
		if r.Outcome.Decision != risk.DecisionNoGo {
			return ErrOverrideNotAllowed
		}
		if err := r.Override.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Commit writes the personal report and, for principals with an organisation,
// the linked organisation copy followed by exactly one CREATED history entry.
// The credential snapshot is copied from the principal as it is now and is
// never refreshed. Commit is not idempotent: every call creates new reports.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*Committed, error) {
	p := req.Principal
	if err := authz.Check(p, authz.ViewOwnReports, ""); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	personal := &Report{
		ID:                 ids.NewAt(now),
		EvaluationID:       req.Outcome.EvaluationID,
		Findings:           append([]risk.Finding(nil), req.Outcome.Findings...),
		Decision:           req.Outcome.Decision,
		Location:           req.Location,
		FlightWindow:       risk.Window{Start: req.Window.Start.UTC(), End: req.Window.End.UTC()},
		ProjectTag:         req.ProjectTag,
		CredentialSnapshot: p.Credentials,
		CreatedBy:          p.Ref(),
		CreatedAt:          now,
	}
	if req.Override != nil {
		personal.Override = req.Override.build(p.Ref(), now)
	}

	orgID := p.OrganisationID
	var org *Report
	if orgID != "" {
		copied := *personal
		copied.ID = ids.NewAt(now)
		copied.OrganisationID = orgID
		copied.PersonalRef = personal.ID
		org = &copied

		personal.OrgReportID = org.ID
		personal.LinkedOrgID = orgID
	}

	if err := s.store.Put(ctx, docstore.Join(PersonalCollection(p.ID), personal.ID), personal, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to write personal report: %w", err)
	}

	result := &Committed{Personal: personal}
	if org == nil {
		s.logCommit(p, personal, "")
		return result, nil
	}

	if err := s.store.Put(ctx, docstore.Join(OrgCollection(orgID), org.ID), org, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to write organisation report: %w", err)
	}
	result.Org = org

	entry, err := s.ledger.Record(ctx, orgID, org.ID, history.ActionCreated, p.Ref(), history.Fields{}, history.Fields{})
	if err != nil {
		return nil, err
	}
	result.History = entry

	if org.Override != nil {
		s.logAudit(s.auditor.LogReportOverrideApplied(ctx, orgID, p.Ref(), org.ID, org.Override.Reason, org.Override.EvidenceReference))
	}

	s.logCommit(p, org, orgID)
	s.notifyCommitted(ctx, org)

	return result, nil
}

func (s *Service) logCommit(p *identity.Principal, r *Report, orgID string) {
	log.Info().
		Str("principal_id", p.ID).
		Str("org_id", orgID).
		Str("report_id", r.ID).
		Str("evaluation_id", r.EvaluationID).
		Str("decision", string(r.Decision)).
		Msg("Report committed")
}

func (s *Service) notifyCommitted(ctx context.Context, r *Report) {
	if s.notifier == nil || r.Decision != risk.DecisionNoGo {
		return
	}
	org, err := s.orgs.Lookup(ctx, r.OrganisationID)
	if err != nil {
		log.Warn().Err(err).Str("org_id", r.OrganisationID).Msg("Failed to load organisation for notification")
		return
	}
	if org.SlackWebhookURL == "" {
		return
	}

	var reasons []string
	for _, f := range r.Findings {
		if f.Severity == risk.SeverityRed {
			reasons = append(reasons, fmt.Sprintf("%s: %s", f.Category, f.Detail))
		}
	}

	s.notifier.PostNoGo(ctx, org.SlackWebhookURL, notify.NoGoMessage{
		OrgName:    org.Name,
		ReportID:   r.ID,
		PilotEmail: r.CreatedBy.Email,
		ProjectTag: r.ProjectTag,
		Reasons:    reasons,
		Window:     formatWindow(r.FlightWindow),
		ReportURL:  s.reportURL(r),
	})
}

func (s *Service) reportURL(r *Report) string {
	if s.baseURL == "" || r.OrganisationID == "" {
		return ""
	}
	return fmt.Sprintf("%s/orgs/%s/reports/%s", s.baseURL, r.OrganisationID, r.ID)
}

func formatWindow(w risk.Window) string {
	return fmt.Sprintf("%s to %s UTC", w.Start.UTC().Format("2006-01-02 15:04"), w.End.UTC().Format("15:04"))
}

func (s *Service) logAudit(err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}

// path resolves ref for actor after the read capability has been checked.
func (s *Service) path(actor *identity.Principal, ref Ref) string {
	if ref.OrgID == "" {
		return docstore.Join(PersonalCollection(actor.ID), ref.ReportID)
	}
	return docstore.Join(OrgCollection(ref.OrgID), ref.ReportID)
}

func (s *Service) checkRead(actor *identity.Principal, ref Ref) error {
	if ref.OrgID == "" {
		return authz.Check(actor, authz.ViewOwnReports, "")
	}
	return authz.Check(actor, authz.ViewOrgReports, ref.OrgID)
}

func (s *Service) load(ctx context.Context, path string) (*Report, int64, error) {
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
			return nil, 0, ErrReportNotFound
		}
		return nil, 0, fmt.Errorf("failed to get report: %w", err)
	}
	var r Report
	if err := doc.Decode(&r); err != nil {
		return nil, 0, err
	}
	return &r, doc.Version, nil
}

// Get reads one report. Soft-deleted organisation reports are still returned
// with their deletion fields set.
func (s *Service) Get(ctx context.Context, actor *identity.Principal, ref Ref) (*Report, error) {
	if err := s.checkRead(actor, ref); err != nil {
		return nil, err
	}
	r, _, err := s.load(ctx, s.path(actor, ref))
	return r, err
}

func decodeReports(docs []docstore.Document) ([]Report, error) {
	out := make([]Report, 0, len(docs))
	for _, doc := range docs {
		var r Report
		if err := doc.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ListPersonal returns the actor's personal reports, newest first.
func (s *Service) ListPersonal(ctx context.Context, actor *identity.Principal) ([]Report, error) {
	if err := authz.Check(actor, authz.ViewOwnReports, ""); err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, PersonalCollection(actor.ID), docstore.Query{OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return decodeReports(docs)
}

func orgQuery(showDeleted bool) docstore.Query {
	q := docstore.Query{OrderBy: "createdAt", Desc: true}
	if !showDeleted {
		q.Where = map[string]any{"deleted": false}
	}
	return q
}

// ListOrg returns the reports of an organisation, newest first. Soft-deleted
// reports are only included when showDeleted is set.
func (s *Service) ListOrg(ctx context.Context, actor *identity.Principal, orgID string, showDeleted bool) ([]Report, error) {
	if err := authz.Check(actor, authz.ViewOrgReports, orgID); err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, OrgCollection(orgID), orgQuery(showDeleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return decodeReports(docs)
}

// WatchOrg streams the organisation's report list after every change until
// ctx is done.
func (s *Service) WatchOrg(ctx context.Context, actor *identity.Principal, orgID string, showDeleted bool) (<-chan []Report, error) {
	if err := authz.Check(actor, authz.ViewOrgReports, orgID); err != nil {
		return nil, err
	}
	docs, err := s.store.Watch(ctx, OrgCollection(orgID), orgQuery(showDeleted))
	if err != nil {
		return nil, fmt.Errorf("failed to watch reports: %w", err)
	}

	out := make(chan []Report)
	go func() {
		defer close(out)
		for snapshot := range docs {
			reports, err := decodeReports(snapshot)
			if err != nil {
				log.Warn().Err(err).Str("org_id", orgID).Msg("Skipping undecodable report snapshot")
				continue
			}
			select {
			case out <- reports:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// History returns the ledger of an organisation report, newest first.
func (s *Service) History(ctx context.Context, actor *identity.Principal, orgID, reportID string) ([]history.Entry, error) {
	if err := authz.Check(actor, authz.ViewOrgReports, orgID); err != nil {
		return nil, err
	}
	if _, _, err := s.load(ctx, docstore.Join(OrgCollection(orgID), reportID)); err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, orgID, reportID)
}

// MetadataUpdate carries the editable fields of an organisation report.
type MetadataUpdate struct {
	FlightWindowStart *time.Time `json:"flightWindowStart"`
	FlightWindowEnd   *time.Time `json:"flightWindowEnd"`
	ProjectTag        *string    `json:"projectTag"`
}

// UpdateMetadata edits the flight window and project tag of an organisation
// report and appends an UPDATED history entry. Concurrent edits are last
// write wins on the report; each still gets its own history entry. An update
// that changes nothing writes nothing.
func (s *Service) UpdateMetadata(ctx context.Context, actor *identity.Principal, orgID, reportID string, u MetadataUpdate) (*Report, error) {
	if err := authz.Check(actor, authz.EditOrgReport, orgID); err != nil {
		return nil, err
	}

	path := docstore.Join(OrgCollection(orgID), reportID)
	r, _, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if r.Deleted {
		return nil, ErrReportDeleted
	}

	if u.ProjectTag != nil {
		tag := strings.TrimSpace(*u.ProjectTag)
		u.ProjectTag = &tag
	}

	window := r.FlightWindow
	if u.FlightWindowStart != nil {
		window.Start = u.FlightWindowStart.UTC()
	}
	if u.FlightWindowEnd != nil {
		window.End = u.FlightWindowEnd.UTC()
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	previous := history.Fields{
		FlightWindowStart: &r.FlightWindow.Start,
		FlightWindowEnd:   &r.FlightWindow.End,
		ProjectTag:        &r.ProjectTag,
	}
	updated := history.Fields{
		FlightWindowStart: u.FlightWindowStart,
		FlightWindowEnd:   u.FlightWindowEnd,
		ProjectTag:        u.ProjectTag,
	}
	changes := history.Diff(previous, updated)
	if len(changes) == 0 {
		return r, nil
	}

	patch := map[string]any{}
	if _, ok := changes[history.FieldFlightWindowStart]; ok {
		patch["flightWindow"] = window
	}
	if _, ok := changes[history.FieldFlightWindowEnd]; ok {
		patch["flightWindow"] = window
	}
	if _, ok := changes[history.FieldProjectTag]; ok {
		patch["projectTag"] = *u.ProjectTag
	}

	if err := s.store.Put(ctx, path, patch, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	if _, err := s.ledger.Record(ctx, orgID, reportID, history.ActionUpdated, actor.Ref(), previous, updated); err != nil {
		return nil, err
	}

	r.FlightWindow = window
	if u.ProjectTag != nil {
		r.ProjectTag = *u.ProjectTag
	}
	return r, nil
}

// SoftDelete marks an organisation report deleted and appends a DELETED
// history entry. Deleting an already deleted report is a no-op.
func (s *Service) SoftDelete(ctx context.Context, actor *identity.Principal, orgID, reportID string) (*Report, error) {
	if err := authz.Check(actor, authz.DeleteOrgReport, orgID); err != nil {
		return nil, err
	}

	path := docstore.Join(OrgCollection(orgID), reportID)
	r, _, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if r.Deleted {
		return r, nil
	}

	now := s.now()
	by := actor.Ref()
	patch := map[string]any{
		"deleted":   true,
		"deletedAt": now,
		"deletedBy": by,
	}
	if err := s.store.Put(ctx, path, patch, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("failed to delete report: %w", err)
	}
	if _, err := s.ledger.Record(ctx, orgID, reportID, history.ActionDeleted, by, history.Fields{}, history.Fields{}); err != nil {
		return nil, err
	}

	r.Deleted = true
	r.DeletedAt = &now
	r.DeletedBy = &by
	return r, nil
}
