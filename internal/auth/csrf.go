package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
)

// CSRFHeaderName carries the token on mutating requests
const CSRFHeaderName = "X-CSRF-Token"

const csrfTokenBytes = 32

var (
	errCSRFMissingCookie = errors.New("missing CSRF cookie")
	errCSRFMissingHeader = errors.New("missing CSRF token in request")
	errCSRFMismatch      = errors.New("CSRF token mismatch")
)

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequiresCSRF reports whether requests with method change state.
func RequiresCSRF(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// ValidateCSRF checks the double-submit token of a state-changing request:
// the header must echo the CSRF cookie. Safe methods always pass.
func ValidateCSRF(r *http.Request) error {
	if !RequiresCSRF(r.Method) {
		return nil
	}

	cookieToken := csrfCookie.read(r)
	if cookieToken == "" {
		return errCSRFMissingCookie
	}
	headerToken := r.Header.Get(CSRFHeaderName)
	if headerToken == "" {
		return errCSRFMissingHeader
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) != 1 {
		return errCSRFMismatch
	}
	return nil
}
