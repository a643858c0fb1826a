package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCreateToken_AndValidateToken(t *testing.T) {
	principalID := uuid.New()
	secret := "test-secret"

	token, err := CreateToken(principalID, secret, 7*24*time.Hour)
	require.NoError(t, err)

	got, err := ValidateToken(token, secret)
	require.NoError(t, err)
	require.Equal(t, principalID, got)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := CreateToken(uuid.New(), "secret-a", time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret-b")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateToken_Expired(t *testing.T) {
	token, err := CreateToken(uuid.New(), "secret", -24*time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret")
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateToken_RejectsForeignClaims(t *testing.T) {
	sign := func(claims jwt.RegisteredClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return token
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]jwt.RegisteredClaims{
		"issuer":      {Issuer: "someone-else", Audience: jwt.ClaimStrings{tokenAudience}, Subject: uuid.NewString(), ExpiresAt: exp},
		"audience":    {Issuer: TokenIssuer, Audience: jwt.ClaimStrings{"other"}, Subject: uuid.NewString(), ExpiresAt: exp},
		"no expiry":   {Issuer: TokenIssuer, Audience: jwt.ClaimStrings{tokenAudience}, Subject: uuid.NewString()},
		"bad subject": {Issuer: TokenIssuer, Audience: jwt.ClaimStrings{tokenAudience}, Subject: "pilot", ExpiresAt: exp},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidateToken(sign(claims), "secret")
			require.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}
