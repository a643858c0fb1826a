package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

var (
	// ErrOrgNotFound is returned when an organisation is not found
	ErrOrgNotFound = errors.New("organisation not found")

	// ErrSlugConflict is returned when an organisation id already exists
	ErrSlugConflict = errors.New("organisation id already exists")
)

// Service provides organisation, membership and invite operations.
type Service struct {
	store       docstore.Store
	principals  *principals.Store
	auditor     *audit.Writer
	superAdmins map[string]bool
	now         func() time.Time
}

// NewService creates a new organisation service. Principals signing in with
// one of superAdminEmails are promoted to super-admin.
func NewService(store docstore.Store, ps *principals.Store, auditor *audit.Writer, superAdminEmails []string) *Service {
	admins := make(map[string]bool, len(superAdminEmails))
	for _, email := range superAdminEmails {
		if e := strings.ToLower(strings.TrimSpace(email)); e != "" {
			admins[e] = true
		}
	}
	return &Service{
		store:       store,
		principals:  ps,
		auditor:     auditor,
		superAdmins: admins,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) load(ctx context.Context, orgID string) (*Organisation, int64, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, 0, ErrOrgNotFound
	}
	doc, err := s.store.Get(ctx, Path(orgID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, 0, ErrOrgNotFound
		}
		return nil, 0, fmt.Errorf("failed to get organisation: %w", err)
	}
	var org Organisation
	if err := doc.Decode(&org); err != nil {
		return nil, 0, err
	}
	return &org, doc.Version, nil
}

// Lookup loads an organisation without an authorization check. It is used by
// internal consumers such as report commit and the expiry sweep.
func (s *Service) Lookup(ctx context.Context, orgID string) (*Organisation, error) {
	org, _, err := s.load(ctx, orgID)
	return org, err
}

// Get retrieves an organisation the actor may view.
func (s *Service) Get(ctx context.Context, actor *identity.Principal, orgID string) (*Organisation, error) {
	if err := authz.Check(actor, authz.ViewOrganisation, orgID); err != nil {
		return nil, err
	}
	org, _, err := s.load(ctx, orgID)
	return org, err
}

// List returns every organisation for super-admins and the actor's own
// organisation for everyone else.
func (s *Service) List(ctx context.Context, actor *identity.Principal) ([]Organisation, error) {
	if actor == nil {
		return nil, authz.ErrAccessDenied
	}

	if authz.Allowed(actor.Role, authz.ListAllOrganisations) {
		return s.ListAll(ctx)
	}

	if actor.OrganisationID == "" {
		return []Organisation{}, nil
	}
	org, _, err := s.load(ctx, actor.OrganisationID)
	if err != nil {
		if errors.Is(err, ErrOrgNotFound) {
			return []Organisation{}, nil
		}
		return nil, err
	}
	return []Organisation{*org}, nil
}

// ListAll returns every organisation, oldest first, without an authorization
// check.
func (s *Service) ListAll(ctx context.Context) ([]Organisation, error) {
	docs, err := s.store.List(ctx, Collection, docstore.Query{OrderBy: "createdAt"})
	if err != nil {
		return nil, fmt.Errorf("failed to list organisations: %w", err)
	}
	out := make([]Organisation, 0, len(docs))
	for _, doc := range docs {
		var org Organisation
		if err := doc.Decode(&org); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, nil
}

// CreateRequest represents the request to create an organisation
type CreateRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	OperatorID       string `json:"operatorId"`
	ExpiryDate       string `json:"expiryDate"`
	MaxUsers         int    `json:"maxUsers"`
	AdminPrincipalID string `json:"adminPrincipalId"`
}

func (r *CreateRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.OperatorID = strings.TrimSpace(r.OperatorID)
	r.AdminPrincipalID = strings.TrimSpace(r.AdminPrincipalID)

	id, err := validation.Slug("id", r.ID)
	if err != nil {
		return err
	}
	r.ID = id
	if r.Name == "" {
		return validation.Required("name")
	}
	if r.MaxUsers < 0 {
		return validation.Invalid("maxUsers", "must not be negative")
	}
	return validation.ValidateDate("expiryDate", r.ExpiryDate)
}

// Create creates an organisation. When AdminPrincipalID is set that principal
// becomes the organisation's admin.
func (s *Service) Create(ctx context.Context, actor *identity.Principal, req CreateRequest) (*Organisation, error) {
	if err := authz.Check(actor, authz.CreateOrganisation, ""); err != nil {
		return nil, err
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var admin *identity.Principal
	if req.AdminPrincipalID != "" {
		p, err := s.principals.Get(ctx, req.AdminPrincipalID)
		if err != nil {
			return nil, err
		}
		admin = p
	}

	org, err := s.insert(ctx, req, actor.Ref())
	if err != nil {
		return nil, err
	}

	s.logAudit(s.auditor.LogOrgCreated(ctx, org.ID, actor.Ref(), org.Name))

	if admin != nil {
		if err := s.principals.SetMembership(ctx, admin.ID, identity.RoleOrgAdmin, org.ID); err != nil {
			return nil, err
		}
		s.logAudit(s.auditor.LogOrgMemberAssigned(ctx, org.ID, actor.Ref(), admin.ID, identity.RoleOrgAdmin))
	}

	log.Info().
		Str("org_id", org.ID).
		Str("created_by", actor.ID).
		Msg("Organisation created")

	return org, nil
}

func (s *Service) insert(ctx context.Context, req CreateRequest, by identity.Ref) (*Organisation, error) {
	now := s.now()
	org := &Organisation{
		ID:             req.ID,
		Name:           req.Name,
		OperatorID:     req.OperatorID,
		ExpiryDate:     req.ExpiryDate,
		MaxUsers:       req.MaxUsers,
		RiskThresholds: risk.DefaultThresholds(),
		CreatedBy:      by,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Put(ctx, Path(org.ID), org, docstore.IfVersion(0)); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to create organisation: %w", err)
	}
	return org, nil
}

// SettingsUpdate carries the organisation fields to change. Nil fields are
// left untouched; an empty SlackWebhookURL removes the webhook.
type SettingsUpdate struct {
	Name            *string          `json:"name"`
	OperatorID      *string          `json:"operatorId"`
	ExpiryDate      *string          `json:"expiryDate"`
	MaxUsers        *int             `json:"maxUsers"`
	RiskThresholds  *risk.Thresholds `json:"riskThresholds"`
	SlackWebhookURL *string          `json:"slackWebhookUrl"`
}

// authorize checks every capability the update needs before anything is read
// or written.
func (u SettingsUpdate) authorize(actor *identity.Principal, orgID string) error {
	if err := authz.Check(actor, authz.ViewOrganisation, orgID); err != nil {
		return err
	}
	if u.Name != nil || u.OperatorID != nil || u.ExpiryDate != nil || u.SlackWebhookURL != nil {
		if err := authz.Check(actor, authz.SetOrgOperator, orgID); err != nil {
			return err
		}
	}
	if u.MaxUsers != nil {
		if err := authz.Check(actor, authz.SetMaxUsers, orgID); err != nil {
			return err
		}
	}
	if u.RiskThresholds != nil {
		if err := authz.Check(actor, authz.SetRiskThresholds, orgID); err != nil {
			return err
		}
	}
	return nil
}

func (u *SettingsUpdate) validate() error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return validation.Required("name")
		}
		u.Name = &name
	}
	if u.OperatorID != nil {
		op := strings.TrimSpace(*u.OperatorID)
		u.OperatorID = &op
	}
	if u.ExpiryDate != nil {
		if err := validation.ValidateDate("expiryDate", *u.ExpiryDate); err != nil {
			return err
		}
	}
	if u.MaxUsers != nil && *u.MaxUsers < 0 {
		return validation.Invalid("maxUsers", "must not be negative")
	}
	if u.RiskThresholds != nil {
		if err := u.RiskThresholds.Validate(); err != nil {
			return err
		}
	}
	if u.SlackWebhookURL != nil {
		if err := validation.SlackWebhook("slackWebhookUrl", *u.SlackWebhookURL); err != nil {
			return err
		}
	}
	return nil
}

// UpdateSettings applies u to the organisation and records the changed values
// in the organisation audit log. Concurrent updates fail with
// docstore.ErrConflict instead of overwriting each other.
func (s *Service) UpdateSettings(ctx context.Context, actor *identity.Principal, orgID string, u SettingsUpdate) (*Organisation, error) {
	if err := u.authorize(actor, orgID); err != nil {
		return nil, err
	}
	if err := u.validate(); err != nil {
		return nil, err
	}

	org, version, err := s.load(ctx, orgID)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{}
	changes := map[string]any{}
	set := func(field string, from, to any) {
		if from == to {
			return
		}
		patch[field] = to
		changes[field] = map[string]any{"from": from, "to": to}
	}

	if u.Name != nil {
		set("name", org.Name, *u.Name)
		org.Name = *u.Name
	}
	if u.OperatorID != nil {
		set("operatorId", org.OperatorID, *u.OperatorID)
		org.OperatorID = *u.OperatorID
	}
	if u.ExpiryDate != nil {
		set("expiryDate", org.ExpiryDate, *u.ExpiryDate)
		org.ExpiryDate = *u.ExpiryDate
	}
	if u.MaxUsers != nil {
		set("maxUsers", org.MaxUsers, *u.MaxUsers)
		org.MaxUsers = *u.MaxUsers
	}
	if u.RiskThresholds != nil {
		set("riskThresholds", org.RiskThresholds, *u.RiskThresholds)
		org.RiskThresholds = *u.RiskThresholds
	}
	if u.SlackWebhookURL != nil && *u.SlackWebhookURL != org.SlackWebhookURL {
		// The webhook is a secret, so only its presence is audited.
		patch["slackWebhookUrl"] = *u.SlackWebhookURL
		changes["slackWebhookUrl"] = map[string]any{
			"from": org.SlackWebhookURL != "",
			"to":   *u.SlackWebhookURL != "",
		}
		org.SlackWebhookURL = *u.SlackWebhookURL
	}

	if len(patch) == 0 {
		return org, nil
	}

	org.UpdatedAt = s.now()
	patch["updatedAt"] = org.UpdatedAt
	if err := s.store.Put(ctx, Path(orgID), patch, docstore.Merge(), docstore.IfVersion(version)); err != nil {
		return nil, fmt.Errorf("failed to update organisation: %w", err)
	}

	s.logAudit(s.auditor.LogOrgSettingsUpdated(ctx, orgID, actor.Ref(), changes))

	return org, nil
}

// AssignPrincipal places a principal in an organisation with the given role.
// An empty orgID removes the principal from their organisation.
func (s *Service) AssignPrincipal(ctx context.Context, actor *identity.Principal, principalID, orgID string, role identity.Role) (*identity.Principal, error) {
	if err := authz.Check(actor, authz.AssignOrganisation, ""); err != nil {
		return nil, err
	}

	switch {
	case orgID == "":
		role = identity.RoleUnassigned
	case role != identity.RoleUser && role != identity.RoleOrgAdmin:
		return nil, validation.Invalid("role", "must be user or org-admin")
	}

	if orgID != "" {
		if _, _, err := s.load(ctx, orgID); err != nil {
			return nil, err
		}
	}

	target, err := s.principals.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if target.Role == identity.RoleSuperAdmin {
		role = identity.RoleSuperAdmin
	}

	if err := s.principals.SetMembership(ctx, target.ID, role, orgID); err != nil {
		return nil, err
	}
	s.logAudit(s.auditor.LogOrgMemberAssigned(ctx, orgID, actor.Ref(), target.ID, role))

	target.Role = role
	target.OrganisationID = orgID
	return target, nil
}

func (s *Service) logAudit(err error) {
	if err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}
