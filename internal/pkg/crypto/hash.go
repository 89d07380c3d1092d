package crypto

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = bcrypt.DefaultCost

// HashKey hashes a group key or password with bcrypt. Surrounding
// whitespace is stripped before hashing; the comparison in VerifyKey
// applies the same normalization, so a key pasted with a trailing
// newline still matches.
func HashKey(key string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(key)), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey reports whether the presented key matches the stored hash.
// Comparison is case-sensitive after whitespace normalization.
func VerifyKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(key))) == nil
}
