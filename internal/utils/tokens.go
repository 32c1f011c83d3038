package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const defaultTokenBytes = 32

// RandomToken returns n random bytes as unpadded base64url, safe to put in
// links and headers.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		n = defaultTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
