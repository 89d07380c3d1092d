// Package auth provides session and owner-key authentication for Gatehouse.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by a Gatehouse session token.
type SessionClaims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// SessionCodec issues and verifies signed session tokens.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionCodec creates a codec signing with the given secret.
func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue creates a signed session token for the user.
func (c *SessionCodec) Issue(userID int64, username string, isAdmin bool) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token. Any failure, including
// expiry and algorithm confusion, returns ErrSessionInvalid.
func (c *SessionCodec) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// UserID returns the numeric user id from the claims subject.
func (c *SessionClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrSessionInvalid
	}
	return id, nil
}
