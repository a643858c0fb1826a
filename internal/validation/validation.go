// Package validation holds the input checks shared by the HTTP handlers and
// the services behind them. Every failure is an *Error naming the offending
// field so the transport layer can report it.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	minSlugLen  = 3
	maxSlugLen  = 64
	maxEmailLen = 320
	maxURLLen   = 500

	dateLayout       = "2006-01-02"
	slackWebhookHost = "hooks.slack.com"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// Error reports a missing or malformed input. Operations that return it have
// not written anything.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Required(field string) *Error {
	return &Error{Field: field, Message: "is required"}
}

func Invalid(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// IsValidationError reports whether err is, or wraps, a validation error.
func IsValidationError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Slug normalizes raw and checks it is a usable identifier: lowercase
// alphanumerics and inner hyphens, 3 to 64 characters.
func Slug(field, raw string) (string, error) {
	slug := NormalizeSlug(raw)
	switch {
	case slug == "":
		return "", Required(field)
	case len(slug) < minSlugLen:
		return "", Invalid(field, fmt.Sprintf("must be at least %d characters", minSlugLen))
	case len(slug) > maxSlugLen:
		return "", Invalid(field, fmt.Sprintf("must be at most %d characters", maxSlugLen))
	case !slugPattern.MatchString(slug):
		return "", Invalid(field, "may only contain a-z, 0-9 and inner hyphens")
	}
	return slug, nil
}

// NormalizeEmail trims and lowercases an email address and checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", Required("email")
	}
	if len(email) > maxEmailLen {
		return "", Invalid("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Invalid("email", "is not a valid address")
	}
	return email, nil
}

// ValidateDate checks an optional YYYY-MM-DD calendar date.
func ValidateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return nil
}

// SlackWebhook checks an incoming-webhook URL. Empty means "no webhook".
func SlackWebhook(field, raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxURLLen {
		return Invalid(field, fmt.Sprintf("must be at most %d characters", maxURLLen))
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host != slackWebhookHost || !strings.HasPrefix(u.Path, "/services/") {
		return Invalid(field, "must be an https://hooks.slack.com/services/ URL")
	}
	return nil
}
