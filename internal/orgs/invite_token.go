package orgs

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// InviteTokenPrefix marks SentinelSky invite tokens
	InviteTokenPrefix = "ssi_"

	inviteTokenBytes = 32
)

// InviteToken is the secret handed to an invitee. Only its hash is stored.
type InviteToken string

// NewInviteToken returns a fresh random token.
func NewInviteToken() (InviteToken, error) {
	b := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return InviteToken(InviteTokenPrefix + base64.RawURLEncoding.EncodeToString(b)), nil
}

// ParseInviteToken accepts a token as pasted by a user. ok is false for
// anything that cannot have been issued by NewInviteToken.
func ParseInviteToken(raw string) (token InviteToken, ok bool) {
	raw = strings.TrimSpace(raw)
	encoded, found := strings.CutPrefix(raw, InviteTokenPrefix)
	if !found {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(decoded) != inviteTokenBytes {
		return "", false
	}
	return InviteToken(raw), true
}

// Hash returns the hex SHA-256 stored on the invite.
func (t InviteToken) Hash() string {
	h := sha256.Sum256([]byte(t))
	return hex.EncodeToString(h[:])
}
