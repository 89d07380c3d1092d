// Package crypto provides cryptographic utilities for Gatehouse.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// AccessTokenBytes is the entropy of a generated share token.
const AccessTokenBytes = 32

// NewAccessToken generates a random share token: 32 bytes of entropy,
// base64 URL-safe without padding, so it is usable in a path segment
// as-is.
func NewAccessToken() (string, error) {
	buf := make([]byte, AccessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewSecret generates a random secret of n bytes, base64 URL-safe
// without padding. Used by the admin CLI to mint owner keys and
// session signing secrets.
func NewSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
