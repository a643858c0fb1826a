package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup            = "user.signup"
	EventLoginFailed           = "auth.login_failed"
	EventOrgCreated            = "org.created"
	EventOrgSettingsUpdated    = "org.settings_updated"
	EventOrgInviteCreated      = "org.invite_created"
	EventOrgInviteRevoked      = "org.invite_revoked"
	EventOrgInviteAccepted     = "org.invite_accepted"
	EventOrgMemberRoleUpdated  = "org.member_role_updated"
	EventOrgMemberRemoved      = "org.member_removed"
	EventOrgMemberAssigned     = "org.member_assigned"
	EventReportOverrideApplied = "report.override_applied"
	EventCredentialsUpdated    = "principal.credentials_updated"
	EventSuperAdminPromoted    = "principal.super_admin_promoted"
	EventOrgExpiryNotified     = "org.expiry_notified"
)

// globalCollection holds events that are not tied to an organisation.
const globalCollection = "audit"

// Event represents an audit log entry.
type Event struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"orgId,omitempty"`
	ActorID    string         `json:"actorId,omitempty"`
	ActorEmail string         `json:"actorEmail,omitempty"`
	Action     string         `json:"action"`
	Meta       map[string]any `json:"meta"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Collection returns the audit collection of an organisation.
func Collection(orgID string) string {
	if orgID == "" {
		return globalCollection
	}
	return docstore.Join("organisations", orgID, "audit")
}

// Writer provides methods to write audit log entries.
type Writer struct {
	store docstore.Store
	now   func() time.Time
}

func NewWriter(store docstore.Store) *Writer {
	return &Writer{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OrgID  string
	Actor  *identity.Ref
	Action string
	Meta   map[string]any
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	now := w.now()
	event := Event{
		ID:        ids.NewAt(now),
		OrgID:     params.OrgID,
		Action:    params.Action,
		Meta:      params.Meta,
		CreatedAt: now,
	}
	if event.Meta == nil {
		event.Meta = map[string]any{}
	}
	if params.Actor != nil {
		event.ActorID = params.Actor.ID
		event.ActorEmail = params.Actor.Email
	}

	path := docstore.Join(Collection(params.OrgID), event.ID)
	if err := w.store.Put(ctx, path, event, docstore.IfVersion(0)); err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	log.Info().
		Str("action", params.Action).
		Str("org_id", params.OrgID).
		Str("actor_id", event.ActorID).
		Msg("Audit event logged")

	return nil
}

func (w *Writer) LogUserSignup(ctx context.Context, actor identity.Ref) error {
	return w.Log(ctx, LogParams{
		Actor:  &actor,
		Action: EventUserSignup,
		Meta: map[string]any{
			"email": actor.Email,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]any{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogOrgCreated(ctx context.Context, orgID string, actor identity.Ref, name string) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgCreated,
		Meta: map[string]any{
			"name": name,
		},
	})
}

// LogOrgSettingsUpdated records the changed settings as field -> {from, to}.
func (w *Writer) LogOrgSettingsUpdated(ctx context.Context, orgID string, actor identity.Ref, changes map[string]any) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgSettingsUpdated,
		Meta:   changes,
	})
}

func (w *Writer) LogOrgInviteCreated(ctx context.Context, orgID string, actor identity.Ref, inviteID, email string, role identity.Role) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgInviteCreated,
		Meta: map[string]any{
			"invite_id": inviteID,
			"email":     email,
			"role":      string(role),
		},
	})
}

func (w *Writer) LogOrgInviteRevoked(ctx context.Context, orgID string, actor identity.Ref, inviteID string) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgInviteRevoked,
		Meta: map[string]any{
			"invite_id": inviteID,
		},
	})
}

func (w *Writer) LogOrgInviteAccepted(ctx context.Context, orgID string, actor identity.Ref, inviteID string) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgInviteAccepted,
		Meta: map[string]any{
			"invite_id": inviteID,
		},
	})
}

func (w *Writer) LogOrgMemberRoleUpdated(ctx context.Context, orgID string, actor identity.Ref, targetID string, previousRole, newRole identity.Role) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgMemberRoleUpdated,
		Meta: map[string]any{
			"target_principal_id": targetID,
			"previous_role":       string(previousRole),
			"new_role":            string(newRole),
		},
	})
}

func (w *Writer) LogOrgMemberRemoved(ctx context.Context, orgID string, actor identity.Ref, targetID string, removedRole identity.Role) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgMemberRemoved,
		Meta: map[string]any{
			"target_principal_id": targetID,
			"role":                string(removedRole),
		},
	})
}

func (w *Writer) LogOrgMemberAssigned(ctx context.Context, orgID string, actor identity.Ref, targetID string, role identity.Role) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventOrgMemberAssigned,
		Meta: map[string]any{
			"target_principal_id": targetID,
			"role":                string(role),
		},
	})
}

func (w *Writer) LogReportOverrideApplied(ctx context.Context, orgID string, actor identity.Ref, reportID, reason, evidenceRef string) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventReportOverrideApplied,
		Meta: map[string]any{
			"report_id": reportID,
			"reason":    reason,
			"evidence":  evidenceRef,
		},
	})
}

func (w *Writer) LogCredentialsUpdated(ctx context.Context, orgID string, actor identity.Ref) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Actor:  &actor,
		Action: EventCredentialsUpdated,
	})
}

func (w *Writer) LogSuperAdminPromoted(ctx context.Context, target identity.Ref) error {
	return w.Log(ctx, LogParams{
		Actor:  &target,
		Action: EventSuperAdminPromoted,
		Meta: map[string]any{
			"email": target.Email,
		},
	})
}

func (w *Writer) LogOrgExpiryNotified(ctx context.Context, orgID, status string, daysLeft int) error {
	return w.Log(ctx, LogParams{
		OrgID:  orgID,
		Action: EventOrgExpiryNotified,
		Meta: map[string]any{
			"status":    status,
			"days_left": daysLeft,
		},
	})
}
