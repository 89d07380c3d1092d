// Package domain contains the core business entities for Gatehouse.
package domain

import (
	"time"
)

// User represents an account that can authenticate and receive a session.
type User struct {
	// ID is the unique identifier for the user record.
	ID int64 `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string `json:"-"`

	// IsAdmin marks administrative accounts.
	IsAdmin bool `json:"is_admin"`

	// IsActive indicates whether the account may authenticate.
	IsActive bool `json:"is_active"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewUser creates a new active user with the given password hash.
func NewUser(username, passwordHash string) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

// CanAuthenticate returns true if the account may log in.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// Principal is the authenticated identity derived from a session token.
// A nil *Principal represents a guest.
type Principal struct {
	// ID is the user identifier carried in the session claims. Allow-list
	// entries on access links match against this value.
	ID string `json:"id"`

	// IsAdmin mirrors the admin flag from the session claims.
	IsAdmin bool `json:"is_admin"`
}
