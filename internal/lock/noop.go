package lock

import (
	"context"
	"time"
)

// NoopLocker implements Locker without any actual locking.
// Used when coordination is handled externally or not needed.
type NoopLocker struct{}

// NewNoopLocker creates a locker that always grants the lock.
func NewNoopLocker() *NoopLocker {
	return &NoopLocker{}
}

// Acquire always succeeds.
func (n *NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

// Release always reports released.
func (n *NoopLocker) Release(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// Ensure NoopLocker implements Locker.
var _ Locker = (*NoopLocker)(nil)
