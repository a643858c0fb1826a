package auth

import (
	"github.com/joffchandler/Sentinel-flight-ops/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8

	// bcrypt ignores input past 72 bytes, so longer passwords are refused
	// instead of silently truncated.
	maxPasswordBytes = 72

	// passwordCost is the bcrypt cost of new hashes. Stored hashes below it
	// are upgraded on the next successful login.
	passwordCost = 12
)

// ValidatePassword checks the password policy for new and reset passwords.
func ValidatePassword(password string) error {
	switch {
	case password == "":
		return validation.Required("password")
	case len(password) < MinPasswordLength:
		return validation.Invalid("password", "must be at least 8 characters")
	case len(password) > maxPasswordBytes:
		return validation.Invalid("password", "must be at most 72 bytes")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword reports whether password matches hash and whether the hash
// should be replaced with one at the current cost.
func checkPassword(hash, password string) (ok, rehash bool) {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, false
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return true, err == nil && cost < passwordCost
}
