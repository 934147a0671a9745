package security

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialKind distinguishes how a stored password value is encoded.
// Accounts that predate hashing still carry their password verbatim;
// every password written through the reset flow is a bcrypt digest.
type CredentialKind int

const (
	CredentialPlaintext CredentialKind = iota
	CredentialDigest
)

// KindOf classifies a stored credential by its encoding
func KindOf(stored string) CredentialKind {
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return CredentialDigest
	}
	return CredentialPlaintext
}

// HashPassword generates a bcrypt digest of the given plaintext
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword checks plaintext against a stored credential,
// dispatching on its encoding. Legacy plaintext rows keep comparing
// byte-for-byte until an explicit migration rewrites them; login never
// upgrades them on its own.
func VerifyPassword(password, stored string) bool {
	if stored == "" {
		return false
	}
	switch KindOf(stored) {
	case CredentialDigest:
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	default:
		return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
	}
}
