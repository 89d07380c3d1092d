// Package domain contains the core business entities for Gatehouse.
package domain

import (
	"time"
)

// LinkMode represents the access mode of a share link.
type LinkMode string

const (
	// LinkModeFree grants access to any requester, authenticated or not.
	LinkModeFree LinkMode = "free"

	// LinkModePaid restricts access to listed users and group-key holders.
	LinkModePaid LinkMode = "paid"
)

// Valid returns true if the mode is one of the known values.
func (m LinkMode) Valid() bool {
	return m == LinkModeFree || m == LinkModePaid
}

// GroupKey is an alternate shared secret attached to a link.
// Only the bcrypt hash of the key is stored; the plaintext is shown once
// at creation time.
type GroupKey struct {
	// ID is the unique identifier for the group key record.
	ID int64 `json:"id"`

	// Label is a human-readable name for the key (e.g. "spring cohort").
	Label string `json:"label"`

	// KeyHash is the bcrypt hash of the plaintext key.
	KeyHash string `json:"-"`

	// Position preserves the order keys were added in.
	Position int `json:"position"`
}

// AccessLink represents a shareable capability token gating one content item.
//
// The token is the external capability: an opaque random string handed out
// to requesters and looked up here on every access check. Revocation works
// by mutating the stored record, which is why the token is a store lookup
// key rather than a signed value.
type AccessLink struct {
	// ID is the unique identifier for the link record.
	ID int64 `json:"id"`

	// Token is the opaque share token. Unique and immutable after creation.
	Token string `json:"token"`

	// TargetID references the gated content item (e.g. a lecture).
	TargetID string `json:"target_id"`

	// IsFree grants access to any requester when true. AllowedUsers,
	// GroupKeys and RequireGroupKey are ignored by the evaluator for
	// free links, though they remain stored.
	IsFree bool `json:"is_free"`

	// ExpiresAt is the optional expiry instant. Nil means never expires.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// AllowedUsers is the set of user identifiers permitted when IsFree
	// is false.
	AllowedUsers []string `json:"allowed_users,omitempty"`

	// GroupKeys are alternate shared secrets granting access without
	// individual allow-listing.
	GroupKeys []GroupKey `json:"group_keys,omitempty"`

	// RequireGroupKey makes presenting a valid group key mandatory even
	// for listed users.
	RequireGroupKey bool `json:"require_group_key"`

	// Visits counts access checks that resulted in ALLOW.
	Visits int64 `json:"visits"`

	// CreatedAt is the timestamp when the link was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewAccessLink creates a new AccessLink with default values.
// The token should be generated using the auth package.
func NewAccessLink(token, targetID string, mode LinkMode, expiresAt *time.Time) *AccessLink {
	return &AccessLink{
		Token:     token,
		TargetID:  targetID,
		IsFree:    mode == LinkModeFree,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

// IsExpired returns true if the link has expired at the given instant.
// A link with expiry exactly equal to now counts as expired.
func (l *AccessLink) IsExpired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !now.Before(*l.ExpiresAt)
}

// IsAllowedUser returns true if userID is in the allow-list.
func (l *AccessLink) IsAllowedUser(userID string) bool {
	for _, id := range l.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// Mode returns the link mode derived from IsFree.
func (l *AccessLink) Mode() LinkMode {
	if l.IsFree {
		return LinkModeFree
	}
	return LinkModePaid
}

// LinkStats is the usage report for one link.
type LinkStats struct {
	Token          string `json:"token"`
	Visits         int64  `json:"visits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}
