package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/audit"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"github.com/rs/zerolog/log"
)

// Bootstrapper resolves the principal of a signed-in account.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, principalID, email string) (*identity.Principal, error)
}

// Deps holds the collaborators of the auth handlers.
type Deps struct {
	Accounts    *Accounts
	Principals  Bootstrapper
	Auditor     *audit.Writer
	JWTSecret   string
	SessionDays int
	Production  bool
}

// Credentials is the signup and login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned after signup and login.
type SessionResponse struct {
	Principal *identity.Principal `json:"principal"`
	CSRFToken string              `json:"csrf_token"`
}

// startSession resolves the principal and issues the session and CSRF cookies.
func startSession(w http.ResponseWriter, r *http.Request, d Deps, acc *Account, status int) {
	p, err := d.Principals.Bootstrap(r.Context(), acc.PrincipalID.String(), acc.Email)
	if err != nil {
		log.Error().Err(err).Str("email", acc.Email).Msg("Failed to resolve principal")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return
	}

	ttl := time.Duration(d.SessionDays) * 24 * time.Hour
	token, err := CreateToken(acc.PrincipalID, d.JWTSecret, ttl)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create token")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return
	}
	csrf, err := newCSRFToken()
	if err != nil {
		log.Error().Err(err).Msg("Failed to create CSRF token")
		apperrors.WriteInternalError(w, r, "Failed to create session")
		return
	}

	SetSessionCookies(w, token, csrf, ttl, d.Production)

	apperrors.WriteSuccess(w, r, status, SessionResponse{Principal: p, CSRFToken: csrf})
}

// HandleSignup handles POST /api/v1/auth/signup
func HandleSignup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err == nil && strings.Contains(email, "/") {
			err = validation.Invalid("email", "is not a valid address")
		}
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "sign up")
			return
		}
		if err := ValidatePassword(req.Password); err != nil {
			apperrors.WriteServiceError(w, r, err, "sign up")
			return
		}

		acc, err := d.Accounts.Create(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			apperrors.WriteServiceError(w, r, err, "create account")
			return
		}

		log.Info().
			Str("principal_id", acc.PrincipalID.String()).
			Str("email", email).
			Msg("Account created")

		startSession(w, r, d, acc, http.StatusCreated)
	}
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Credentials
		if !apperrors.ReadJSON(w, r, &req) {
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		acc, err := d.Accounts.Authenticate(r.Context(), email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				log.Debug().Str("email", email).Msg("Login failed")
				if err := d.Auditor.LogLoginFailed(r.Context(), email, r.RemoteAddr); err != nil {
					log.Error().Err(err).Msg("Failed to log audit event")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			apperrors.WriteServiceError(w, r, err, "log in")
			return
		}

		log.Info().
			Str("principal_id", acc.PrincipalID.String()).
			Str("email", email).
			Msg("Principal logged in")

		startSession(w, r, d, acc, http.StatusOK)
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookies(w)

	if id := GetPrincipalID(r.Context()); id != uuid.Nil {
		log.Info().Str("principal_id", id.String()).Msg("Principal logged out")
	}

	w.WriteHeader(http.StatusNoContent)
}
