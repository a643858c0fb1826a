package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	slug, err := Slug("id", "  ACME-Drones ")
	require.NoError(t, err)
	require.Equal(t, "acme-drones", slug)

	for _, raw := range []string{"", "ab", "-acme", "acme-", "acme_drones"} {
		_, err := Slug("id", raw)
		var ve *Error
		require.ErrorAs(t, err, &ve, raw)
		require.Equal(t, "id", ve.Field)
	}
}

func TestNormalizeEmail(t *testing.T) {
	email, err := NormalizeEmail("  Pilot@Example.COM ")
	require.NoError(t, err)
	require.Equal(t, "pilot@example.com", email)

	for _, raw := range []string{"", "not-an-email", "Pilot <pilot@example.com>"} {
		_, err = NormalizeEmail(raw)
		require.True(t, IsValidationError(err), raw)
	}
}

func TestIsValidationError_Wrapped(t *testing.T) {
	err := fmt.Errorf("create invite: %w", Required("email"))
	require.True(t, IsValidationError(err))
	require.Equal(t, "create invite: email: is required", err.Error())
}

func TestValidateDate(t *testing.T) {
	require.NoError(t, ValidateDate("expiryDate", ""))
	require.NoError(t, ValidateDate("expiryDate", "2027-01-31"))
	require.True(t, IsValidationError(ValidateDate("expiryDate", "31/01/2027")))
}

func TestSlackWebhook(t *testing.T) {
	require.NoError(t, SlackWebhook("slackWebhookUrl", ""))
	require.NoError(t, SlackWebhook("slackWebhookUrl", "https://hooks.slack.com/services/T0/B0/xyz"))

	for _, raw := range []string{
		"http://hooks.slack.com/services/T0/B0/xyz",
		"https://hooks.slack.com.evil.test/services/x",
		"https://example.com/services/x",
	} {
		require.True(t, IsValidationError(SlackWebhook("slackWebhookUrl", raw)), raw)
	}
}
