package sqlite

import (
	"context"
	"errors"

	"testing"

	"github.com/paragon-edu/gatehouse/internal/domain"
)

func TestUserCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := domain.NewUser("alice", "hash-1")
	user.IsAdmin = true
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected a non-zero id after create")
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.PasswordHash != "hash-1" || !byName.IsAdmin || !byName.IsActive {
		t.Errorf("unexpected user: %+v", byName)
	}

	byID, err := repo.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Username != "alice" {
		t.Errorf("expected alice, got %q", byID.Username)
	}

	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, 9999); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserDuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, domain.NewUser("bob", "h1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, domain.NewUser("bob", "h2"))
	if !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestUserExistsByUsername(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	exists, err := repo.ExistsByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("expected carol to not exist yet")
	}

	if err := repo.Create(ctx, domain.NewUser("carol", "h")); err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err = repo.ExistsByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Error("expected carol to exist")
	}
}
