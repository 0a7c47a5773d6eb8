package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
)

// Reset tokens are valid for one hour from issuance
const resetTokenTTL = 1 * time.Hour

// generateResetToken creates a cryptographically secure random token with
// 32 bytes of entropy, URL-safe for use in reset links.
func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// hashToken returns the hex-encoded SHA-256 of a token. Only the hash is
// persisted; a database leak does not expose usable reset tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
