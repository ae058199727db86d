package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSessionToken generates a cryptographically secure random session
// token: 32 bytes, base64url encoded without padding.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
