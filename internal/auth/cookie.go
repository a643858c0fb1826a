package auth

import (
	"net/http"
	"time"
)

const (
	// SessionCookieName carries the signed session token
	SessionCookieName = "ss_session"

	// CSRFCookieName carries the double-submit token; the client reads it
	CSRFCookieName = "ss_csrf"
)

type cookieKind struct {
	name     string
	httpOnly bool
}

var (
	tokenCookie = cookieKind{name: SessionCookieName, httpOnly: true}
	csrfCookie  = cookieKind{name: CSRFCookieName, httpOnly: false}
)

func (c cookieKind) write(w http.ResponseWriter, value string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: c.httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieKind) read(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookies issues the session token and its CSRF token with the same
// lifetime. Cookies are Secure in production.
func SetSessionCookies(w http.ResponseWriter, token, csrf string, ttl time.Duration, secure bool) {
	maxAge := int(ttl / time.Second)
	tokenCookie.write(w, token, maxAge, secure)
	csrfCookie.write(w, csrf, maxAge, secure)
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter) {
	tokenCookie.write(w, "", -1, false)
	csrfCookie.write(w, "", -1, false)
}
