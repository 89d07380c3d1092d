package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerAcquireRelease(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.HousekeepingSweep()

	acquired, err := locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !acquired {
		t.Fatal("first Acquire() = false, want true")
	}

	// Second acquire while held must fail.
	acquired, err = locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if acquired {
		t.Fatal("second Acquire() = true, want false")
	}

	released, err := locker.Release(ctx, key)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !released {
		t.Fatal("Release() = false, want true")
	}

	// Releasing again reports not held.
	released, err = locker.Release(ctx, key)
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if released {
		t.Fatal("second Release() = true, want false")
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	acquired, err := locker.Acquire(ctx, "k", time.Millisecond)
	if err != nil || !acquired {
		t.Fatalf("Acquire() = %v, %v", acquired, err)
	}

	time.Sleep(5 * time.Millisecond)

	// Expired lock can be taken over.
	acquired, err = locker.Acquire(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !acquired {
		t.Fatal("Acquire() after expiry = false, want true")
	}
}
