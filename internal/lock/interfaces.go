// Package lock provides distributed and local locking abstractions.
// For single-node deployments, memory-based locks are used.
// For multi-replica deployments, Redis-based locks keep the background
// sweeper from running on more than one instance at a time.
package lock

import (
	"context"
	"time"
)

// Locker defines the interface for distributed/local locking.
type Locker interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by
	// another process. The lock expires after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock held by this process.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// Keys provides lock key generation for common scenarios.
var Keys = lockKeys{}

type lockKeys struct{}

// HousekeepingSweep returns the lock key guarding the periodic
// archive-and-prune sweep.
func (lockKeys) HousekeepingSweep() string {
	return "lock:housekeeping:sweep"
}
