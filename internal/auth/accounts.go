package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joffchandler/Sentinel-flight-ops/internal/docstore"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmailTaken is returned when signing up with a registered email
	ErrEmailTaken = errors.New("email address already registered")

	// ErrAccountNotFound is returned when no account exists for an email
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AccountsCollection holds one login per email address.
const AccountsCollection = "accounts"

// Account is an email and password login bound to a principal.
type Account struct {
	PrincipalID  uuid.UUID `json:"principalId"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Accounts stores logins keyed by normalized email.
type Accounts struct {
	store docstore.Store
}

// NewAccounts creates an account store.
func NewAccounts(store docstore.Store) *Accounts {
	return &Accounts{store: store}
}

func accountPath(email string) string {
	return docstore.Join(AccountsCollection, email)
}

// Create registers email with a fresh principal id. email must already be
// normalized.
func (a *Accounts) Create(ctx context.Context, email, password string) (*Account, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc := &Account{
		PrincipalID:  uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.Put(ctx, accountPath(email), acc, docstore.IfVersion(0)); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// Get returns the account of email.
func (a *Accounts) Get(ctx context.Context, email string) (*Account, int64, error) {
	doc, err := a.store.Get(ctx, accountPath(email))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
			return nil, 0, ErrAccountNotFound
		}
		return nil, 0, fmt.Errorf("failed to get account: %w", err)
	}

	var acc Account
	if err := doc.Decode(&acc); err != nil {
		return nil, 0, err
	}
	return &acc, doc.Version, nil
}

// SetPassword replaces the password of email.
func (a *Accounts) SetPassword(ctx context.Context, email, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	_, version, err := a.Get(ctx, email)
	if err != nil {
		return err
	}
	return a.storeHash(ctx, email, password, version)
}

func (a *Accounts) storeHash(ctx context.Context, email, password string, version int64) error {
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	patch := map[string]any{"passwordHash": hash}
	if err := a.store.Put(ctx, accountPath(email), patch, docstore.Merge(), docstore.IfVersion(version)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// Authenticate returns the account of email if password matches. Hashes made
// at a lower bcrypt cost are replaced on the way.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	acc, version, err := a.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	ok, rehash := checkPassword(acc.PasswordHash, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if rehash {
		if err := a.storeHash(ctx, email, password, version); err != nil {
			log.Warn().Err(err).Str("principal_id", acc.PrincipalID.String()).Msg("Failed to upgrade password hash")
		}
	}
	return acc, nil
}
