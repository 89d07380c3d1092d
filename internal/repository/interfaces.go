// Package repository defines data access interfaces for Gatehouse.
// These interfaces abstract database operations, allowing for different
// implementations (SQLite, PostgreSQL, in-memory for testing) while keeping
// the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/paragon-edu/gatehouse/internal/domain"
)

// =============================================================================
// Access Link Repository
// =============================================================================

// AccessLinkRepository defines the interface for access link data access.
type AccessLinkRepository interface {
	// Create creates a new access link.
	Create(ctx context.Context, link *domain.AccessLink) error

	// GetByToken retrieves a link by its share token, including the
	// allow-list and group keys.
	GetByToken(ctx context.Context, token string) (*domain.AccessLink, error)

	// AddAllowedUser adds userID to the link's allow-list.
	// Adding an already-listed id is not an error.
	AddAllowedUser(ctx context.Context, token, userID string) error

	// RemoveAllowedUser removes userID from the link's allow-list.
	// Removing an absent id is not an error (revocation is idempotent).
	RemoveAllowedUser(ctx context.Context, token, userID string) error

	// AddGroupKey appends a group key to the link.
	AddGroupKey(ctx context.Context, token string, key *domain.GroupKey) error

	// RecordVisit records one allowed access check: atomically increments
	// the visit counter and inserts the visitor id if absent. The
	// increment and the insert must happen at the storage layer, never as
	// an application-level read-modify-write.
	RecordVisit(ctx context.Context, token, visitorID string) error

	// GetStats returns the visit count and distinct visitor count.
	GetStats(ctx context.Context, token string) (*domain.LinkStats, error)

	// PruneVisitors deletes visitor rows for links whose expiry is older
	// than the cutoff. Returns the number of rows removed.
	PruneVisitors(ctx context.Context, cutoff time.Time) (int64, error)
}

// =============================================================================
// Prep Access Repository
// =============================================================================

// PrepAccessRepository defines the interface for entitlement data access.
type PrepAccessRepository interface {
	// Create creates a new entitlement.
	Create(ctx context.Context, access *domain.PrepAccess) error

	// Get retrieves the entitlement for a (userEmail, examID) pair.
	Get(ctx context.Context, userEmail, examID string) (*domain.PrepAccess, error)

	// UpdateStatus sets the status of an entitlement.
	UpdateStatus(ctx context.Context, userEmail, examID string, status domain.PrepAccessStatus) error

	// ArchiveExpired flips active entitlements past their expiry to
	// archived. Returns the number of rows updated.
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}
