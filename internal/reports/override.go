package reports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
	"github.com/joffchandler/Sentinel-flight-ops/internal/notify"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

// OverrideRequest is the justification for overriding a NO-GO decision.
type OverrideRequest struct {
	Reason            string `json:"reason"`
	EvidenceReference string `json:"evidenceReference"`
}

func (o *OverrideRequest) validate() error {
	o.Reason = strings.TrimSpace(o.Reason)
	o.EvidenceReference = strings.TrimSpace(o.EvidenceReference)
	if o.Reason == "" {
		return validation.Required("reason")
	}
	if len(o.Reason) > 2000 {
		return validation.Invalid("reason", "must be at most 2000 characters")
	}
	return nil
}

func (o *OverrideRequest) build(by identity.Ref, at time.Time) *Override {
	return &Override{
		Reason:            o.Reason,
		EvidenceReference: o.EvidenceReference,
		ApprovedBy:        by,
		ApprovedAt:        at,
	}
}

// checkOverride authorizes an override on ref. Organisation admins may
// override any report of their organisation; other members only reports they
// created.
func (s *Service) checkOverride(ctx context.Context, actor *identity.Principal, ref Ref) error {
	if ref.OrgID == "" {
		return authz.Check(actor, authz.ViewOwnReports, "")
	}
	if err := authz.Check(actor, authz.OverrideOrgReport, ref.OrgID); err == nil {
		return nil
	}
	if err := authz.Check(actor, authz.ViewOrgReports, ref.OrgID); err != nil {
		return err
	}
	r, _, err := s.load(ctx, s.path(actor, ref))
	if err != nil {
		return err
	}
	if r.CreatedBy.ID != actor.ID {
		return authz.ErrAccessDenied
	}
	return nil
}

// maxOverrideAttempts bounds retries when a concurrent metadata edit bumps the
// version of the copy being overridden.
const maxOverrideAttempts = 3

// overridable reports why r cannot take an override, if it cannot.
func overridable(r *Report) error {
	switch {
	case r.Decision != risk.DecisionNoGo:
		return ErrOverrideNotAllowed
	case r.Override != nil:
		return ErrOverrideExists
	case r.Deleted:
		return ErrReportDeleted
	}
	return nil
}

// ApplyOverride attaches an override to a NO-GO report. Linked personal and
// organisation copies share one override, and the organisation copy decides
// it: its version-checked write is the only one that can succeed, and the
// personal copy is mirrored afterwards. Once applied the override can never be
// changed or removed. Reports with any other decision are rejected without a
// write.
func (s *Service) ApplyOverride(ctx context.Context, actor *identity.Principal, ref Ref, req OverrideRequest) (*Report, error) {
	if err := s.checkOverride(ctx, actor, ref); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	path := s.path(actor, ref)
	r, version, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := overridable(r); err != nil {
		return nil, err
	}

	orgID, orgReportID := r.OrganisationID, r.ID
	authority, mirror := path, ""
	switch {
	case r.OrganisationID != "" && r.PersonalRef != "":
		mirror = docstore.Join(PersonalCollection(r.CreatedBy.ID), r.PersonalRef)
	case r.OrganisationID == "" && r.LinkedOrgID != "" && r.OrgReportID != "":
		// Writing through to the organisation copy needs current access to
		// that organisation.
		if err := authz.Check(actor, authz.ViewOrgReports, r.LinkedOrgID); err != nil {
			return nil, err
		}
		orgID, orgReportID = r.LinkedOrgID, r.OrgReportID
		authority = docstore.Join(OrgCollection(orgID), orgReportID)
		org, orgVersion, err := s.load(ctx, authority)
		if err != nil {
			return nil, err
		}
		if err := overridable(org); err != nil {
			return nil, err
		}
		mirror, version = path, orgVersion
	}

	if req.EvidenceReference != "" {
		if err := s.checkEvidence(ctx, actor, orgID, req.EvidenceReference); err != nil {
			return nil, err
		}
	}

	ov := req.build(actor.Ref(), s.now())
	patch := map[string]any{"override": ov}

	if err := s.writeOverride(ctx, authority, version, patch); err != nil {
		return nil, err
	}
	// Only the winner of the authority write gets here, so the mirror needs no
	// version check.
	if mirror != "" {
		if err := s.store.Put(ctx, mirror, patch, docstore.Merge()); err != nil {
			return nil, fmt.Errorf("failed to write override to linked report: %w", err)
		}
	}
	r.Override = ov

	if orgID != "" {
		s.logAudit(s.auditor.LogReportOverrideApplied(ctx, orgID, actor.Ref(), orgReportID, ov.Reason, ov.EvidenceReference))
		s.notifyOverride(ctx, orgID, orgReportID, ov)
	}

	log.Info().
		Str("principal_id", actor.ID).
		Str("org_id", orgID).
		Str("report_id", r.ID).
		Msg("Override applied")

	return r, nil
}

// writeOverride merges patch into path if the stored copy is still at
// version. A conflict caused by another override is ErrOverrideExists; one
// caused by an unrelated edit is retried against the fresh version.
func (s *Service) writeOverride(ctx context.Context, path string, version int64, patch map[string]any) error {
	for attempt := 1; ; attempt++ {
		err := s.store.Put(ctx, path, patch, docstore.Merge(), docstore.IfVersion(version))
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrConflict) || attempt == maxOverrideAttempts {
			return fmt.Errorf("failed to write override: %w", err)
		}

		current, v, err := s.load(ctx, path)
		if err != nil {
			return err
		}
		if err := overridable(current); err != nil {
			return err
		}
		version = v
	}
}

func (s *Service) notifyOverride(ctx context.Context, orgID, reportID string, ov *Override) {
	if s.notifier == nil {
		return
	}
	org, err := s.orgs.Lookup(ctx, orgID)
	if err != nil {
		log.Warn().Err(err).Str("org_id", orgID).Msg("Failed to load organisation for notification")
		return
	}
	if org.SlackWebhookURL == "" {
		return
	}
	s.notifier.PostOverride(ctx, org.SlackWebhookURL, notify.OverrideMessage{
		OrgName:     org.Name,
		ReportID:    reportID,
		ApprovedBy:  ov.ApprovedBy.Email,
		Reason:      ov.Reason,
		HasEvidence: ov.EvidenceReference != "",
		ReportURL:   s.reportURL(&Report{ID: reportID, OrganisationID: orgID}),
	})
}

// Evidence describes an uploaded artifact backing an override. The bytes
// live in a separate content document so that lookups never load them.
type Evidence struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	ContentType string       `json:"contentType"`
	Size        int64        `json:"size"`
	SHA256      string       `json:"sha256"`
	UploadedBy  identity.Ref `json:"uploadedBy"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Upload is an evidence file as received.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// StoreEvidence saves an override artifact under the organisation, or under
// the actor for personal reports, and returns it without its content. The
// returned id is the evidence reference of an override.
func (s *Service) StoreEvidence(ctx context.Context, actor *identity.Principal, orgID string, up Upload) (*Evidence, error) {
	if orgID == "" {
		if err := authz.Check(actor, authz.ViewOwnReports, ""); err != nil {
			return nil, err
		}
	} else if err := authz.Check(actor, authz.ViewOrgReports, orgID); err != nil {
		return nil, err
	}

	filename := strings.TrimSpace(up.Filename)
	if filename == "" {
		return nil, validation.Required("filename")
	}
	if up.Body == nil {
		return nil, validation.Required("file")
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, s.maxEvidenceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	if int64(len(data)) > s.maxEvidenceBytes {
		return nil, ErrEvidenceTooLarge
	}
	if len(data) == 0 {
		return nil, validation.Invalid("file", "is empty")
	}

	sum := sha256.Sum256(data)
	now := s.now()
	ev := &Evidence{
		ID:          ids.NewAt(now),
		Filename:    filename,
		ContentType: up.ContentType,
		Size:        int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		UploadedBy:  actor.Ref(),
		CreatedAt:   now,
	}

	// Content first: a metadata record always has its bytes behind it.
	content := evidenceContent{ID: ev.ID, Data: data}
	if err := s.store.Put(ctx, docstore.Join(EvidenceContentCollection(orgID, actor.ID), ev.ID), content, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to store evidence content: %w", err)
	}
	if err := s.store.Put(ctx, docstore.Join(EvidenceCollection(orgID, actor.ID), ev.ID), ev, docstore.IfVersion(0)); err != nil {
		return nil, fmt.Errorf("failed to store evidence: %w", err)
	}

	log.Info().
		Str("org_id", orgID).
		Str("evidence_id", ev.ID).
		Int64("size", ev.Size).
		Msg("Override evidence stored")

	return ev, nil
}

type evidenceContent struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

// checkEvidence resolves an evidence reference in the collections an
// override may draw on: the organisation's uploads, then the actor's own.
func (s *Service) checkEvidence(ctx context.Context, actor *identity.Principal, orgID, evidenceID string) error {
	var collections []string
	if orgID != "" {
		collections = append(collections, EvidenceCollection(orgID, ""))
	}
	collections = append(collections, EvidenceCollection("", actor.ID))

	for _, c := range collections {
		_, err := s.store.Get(ctx, docstore.Join(c, evidenceID))
		switch {
		case err == nil:
			return nil
		case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrInvalidPath):
			continue
		default:
			return fmt.Errorf("failed to check evidence: %w", err)
		}
	}
	return validation.Invalid("evidenceReference", "unknown evidence")
}
