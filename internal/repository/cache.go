// Package repository defines data access interfaces for Gatehouse.
package repository

import (
	"context"
	"time"
)

// =============================================================================
// Cache Interface (Redis or in-memory)
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented by Redis for multi-replica deployments and by an in-memory
// cache for single-node ones. The access evaluator uses it as a
// read-through cache for link lookups; mutations invalidate by Delete.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Distributed Lock Interface (Redis)
// =============================================================================

// DistributedLock defines the interface for distributed locking.
// Used to ensure only one replica runs the housekeeping sweep at a time.
type DistributedLock interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by
	// another process. The lock expires after ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release releases a lock held by this process.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)
}
