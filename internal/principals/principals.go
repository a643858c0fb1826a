package principals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
)

// ErrNotFound is returned when no principal exists with the given id.
var ErrNotFound = errors.New("principal not found")

// Collection holds one document per principal.
const Collection = "principals"

// Path returns the document path of a principal.
func Path(id string) string {
	return docstore.Join(Collection, id)
}

// Store reads and writes principal documents.
type Store struct {
	store docstore.Store
	now   func() time.Time
}

// NewStore creates a principal store.
func NewStore(store docstore.Store) *Store {
	return &Store{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get loads a principal.
func (s *Store) Get(ctx context.Context, id string) (*identity.Principal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	doc, err := s.store.Get(ctx, Path(id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}
	var p identity.Principal
	if err := doc.Decode(&p); err != nil {
		return nil, err
	}
	if !p.Role.IsValid() {
		p.Role = identity.RoleUnassigned
	}
	return &p, nil
}

// Create stores a new principal. It fails with docstore.ErrConflict if the
// id is taken.
func (s *Store) Create(ctx context.Context, p *identity.Principal) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if !p.Role.IsValid() {
		p.Role = identity.RoleUnassigned
	}
	if err := s.store.Put(ctx, Path(p.ID), p, docstore.IfVersion(0)); err != nil {
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

// SetMembership sets the role and organisation of a principal. An empty
// orgID clears the organisation.
func (s *Store) SetMembership(ctx context.Context, id string, role identity.Role, orgID string) error {
	if !role.IsValid() {
		return validation.Invalid("role", "unknown role")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	patch := map[string]any{
		"role":           role,
		"organisationId": orgID,
	}
	if err := s.store.Put(ctx, Path(id), patch, docstore.Merge()); err != nil {
		return fmt.Errorf("failed to update principal membership: %w", err)
	}
	return nil
}

// ListByOrg returns the members of an organisation, oldest first.
func (s *Store) ListByOrg(ctx context.Context, orgID string) ([]identity.Principal, error) {
	return s.list(ctx, docstore.Query{
		Where:   map[string]any{"organisationId": orgID},
		OrderBy: "createdAt",
	})
}

// List returns every principal, oldest first.
func (s *Store) List(ctx context.Context) ([]identity.Principal, error) {
	return s.list(ctx, docstore.Query{OrderBy: "createdAt"})
}

func (s *Store) list(ctx context.Context, q docstore.Query) ([]identity.Principal, error) {
	docs, err := s.store.List(ctx, Collection, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	out := make([]identity.Principal, 0, len(docs))
	for _, doc := range docs {
		var p identity.Principal
		if err := doc.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ValidateCredentials checks the certification level and date formats.
func ValidateCredentials(c identity.CredentialSet) error {
	if c.PilotCert != "" && !c.PilotCert.IsValid() {
		return validation.Invalid("pilotCert", "must be one of non, a2coc, gvc")
	}
	dates := []struct{ field, value string }{
		{"pilotExpiry", c.PilotExpiry},
		{"operatorExpiry", c.OperatorExpiry},
		{"orgOperatorExpiry", c.OrgOperatorExpiry},
	}
	for _, d := range dates {
		if err := validation.ValidateDate(d.field, d.value); err != nil {
			return err
		}
	}
	return nil
}

// UpdateCredentials replaces the credential set of the acting principal.
func (s *Store) UpdateCredentials(ctx context.Context, actor *identity.Principal, creds identity.CredentialSet) (*identity.Principal, error) {
	if err := authz.Check(actor, authz.UpdateOwnCredentials, ""); err != nil {
		return nil, err
	}

	creds.PilotID = strings.TrimSpace(creds.PilotID)
	creds.OperatorID = strings.TrimSpace(creds.OperatorID)
	creds.OrgOperatorID = strings.TrimSpace(creds.OrgOperatorID)
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	patch := map[string]any{"credentials": creds}
	if err := s.store.Put(ctx, Path(actor.ID), patch, docstore.Merge()); err != nil {
		return nil, fmt.Errorf("failed to update credentials: %w", err)
	}

	updated := *actor
	updated.Credentials = creds
	return &updated, nil
}

// CredentialStatus is a held credential with the days left until expiry.
type CredentialStatus struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Expiry   string `json:"expiry"`
	DaysLeft int    `json:"daysLeft"`
	Expired  bool   `json:"expired"`
}

// Summarize reports every held credential against now.
func Summarize(c identity.CredentialSet, now time.Time) []CredentialStatus {
	held := c.Held()
	out := make([]CredentialStatus, 0, len(held))
	for _, cred := range held {
		expiry := cred.Expiry.Format(identity.DateLayout)
		days, _ := identity.DaysLeft(expiry, now)
		out = append(out, CredentialStatus{
			Name:     cred.Name,
			ID:       cred.ID,
			Expiry:   expiry,
			DaysLeft: days,
			Expired:  days < 0,
		})
	}
	return out
}
