package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/joffchandler/Sentinel-flight-ops/internal/apperrors"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/principals"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// PrincipalIDContextKey is the context key for storing the principal ID
	PrincipalIDContextKey contextKey = "principal_id"
)

// AuthMiddleware validates the session cookie and injects the principal ID into context
// If the session is invalid, it clears the cookie and continues without authentication
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenCookie.read(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principalID, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookies(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalIDContextKey, principalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalLoader reads principals by id.
type PrincipalLoader interface {
	Get(ctx context.Context, id string) (*identity.Principal, error)
}

// RequirePrincipal loads the principal of the session and stores it in the
// request context. It returns 401 without a valid session and never caches,
// so role and organisation changes apply to the next request.
func RequirePrincipal(loader PrincipalLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := GetPrincipalID(r.Context())
			if id == uuid.Nil {
				apperrors.WriteUnauthorized(w, r, "Authentication required")
				return
			}

			p, err := loader.Get(r.Context(), id.String())
			if err != nil {
				if errors.Is(err, principals.ErrNotFound) {
					ClearSessionCookies(w)
					apperrors.WriteUnauthorized(w, r, "Authentication required")
					return
				}
				apperrors.WriteServiceError(w, r, err, "load principal")
				return
			}

			next.ServeHTTP(w, r.WithContext(principals.WithPrincipal(r.Context(), p)))
		})
	}
}

// GetPrincipalID retrieves the principal ID from the request context
// Returns uuid.Nil if no session is present
func GetPrincipalID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(PrincipalIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
