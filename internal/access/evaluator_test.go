package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/pkg/crypto"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// mockLinkRepo is a hand-rolled mock for the evaluator tests.
type mockLinkRepo struct {
	links  map[string]*domain.AccessLink
	getErr error

	visits []string // tokens passed to RecordVisit, in order
}

func newMockLinkRepo() *mockLinkRepo {
	return &mockLinkRepo{links: make(map[string]*domain.AccessLink)}
}

func (m *mockLinkRepo) Create(ctx context.Context, link *domain.AccessLink) error {
	m.links[link.Token] = link
	return nil
}

func (m *mockLinkRepo) GetByToken(ctx context.Context, token string) (*domain.AccessLink, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	link, ok := m.links[token]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	return link, nil
}

func (m *mockLinkRepo) AddAllowedUser(ctx context.Context, token, userID string) error {
	return nil
}

func (m *mockLinkRepo) RemoveAllowedUser(ctx context.Context, token, userID string) error {
	return nil
}

func (m *mockLinkRepo) AddGroupKey(ctx context.Context, token string, key *domain.GroupKey) error {
	return nil
}

func (m *mockLinkRepo) RecordVisit(ctx context.Context, token, visitorID string) error {
	if _, ok := m.links[token]; !ok {
		return domain.ErrLinkNotFound
	}
	m.visits = append(m.visits, token)
	m.links[token].Visits++
	return nil
}

func (m *mockLinkRepo) GetStats(ctx context.Context, token string) (*domain.LinkStats, error) {
	link, ok := m.links[token]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	return &domain.LinkStats{Token: token, Visits: link.Visits}, nil
}

func (m *mockLinkRepo) PruneVisitors(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

var _ repository.AccessLinkRepository = (*mockLinkRepo)(nil)

func mustHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := crypto.HashKey(key, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}
	return hash
}

func newTestEvaluator(repo *mockLinkRepo) *Evaluator {
	return NewEvaluator(repo, nil, 0, nil, zerolog.Nop())
}

func TestCheckAccess(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	repo := newMockLinkRepo()
	cohortHash := mustHash(t, "cohort-key")

	repo.links["free"] = &domain.AccessLink{Token: "free", TargetID: "lecture-1", IsFree: true}
	repo.links["free-expired"] = &domain.AccessLink{Token: "free-expired", IsFree: true, ExpiresAt: &past}
	repo.links["paid"] = &domain.AccessLink{
		Token:        "paid",
		TargetID:     "lecture-2",
		AllowedUsers: []string{"ada", "grace"},
		GroupKeys:    []domain.GroupKey{{KeyHash: cohortHash}},
	}
	repo.links["paid-strict"] = &domain.AccessLink{
		Token:           "paid-strict",
		AllowedUsers:    []string{"ada"},
		GroupKeys:       []domain.GroupKey{{KeyHash: cohortHash}},
		RequireGroupKey: true,
	}
	repo.links["paid-future"] = &domain.AccessLink{
		Token:        "paid-future",
		AllowedUsers: []string{"ada"},
		ExpiresAt:    &future,
	}

	ada := &domain.Principal{ID: "ada"}
	mallory := &domain.Principal{ID: "mallory"}

	tests := []struct {
		name      string
		token     string
		principal *domain.Principal
		groupKey  string
		want      Verdict
	}{
		{
			name:  "unknown token",
			token: "missing",
			want:  Deny(ReasonNoLink),
		},
		{
			name:  "expired link denies even free mode",
			token: "free-expired",
			want:  Deny(ReasonExpired),
		},
		{
			name:  "free link allows guests",
			token: "free",
			want:  Allow("free"),
		},
		{
			name:      "free link ignores presented group key",
			token:     "free",
			principal: mallory,
			groupKey:  "wrong-key",
			want:      Allow("free"),
		},
		{
			name:  "paid link denies guests",
			token: "paid",
			want:  Deny(ReasonNoUser),
		},
		{
			name:      "listed user allowed",
			token:     "paid",
			principal: ada,
			want:      Allow("paid"),
		},
		{
			name:      "unlisted user denied",
			token:     "paid",
			principal: mallory,
			want:      Deny(ReasonNotInList),
		},
		{
			name:      "valid group key admits unlisted user",
			token:     "paid",
			principal: mallory,
			groupKey:  "cohort-key",
			want:      Allow("paid"),
		},
		{
			name:      "wrong group key does not admit unlisted user",
			token:     "paid",
			principal: mallory,
			groupKey:  "wrong-key",
			want:      Deny(ReasonNotInList),
		},
		{
			name:      "mandatory key blocks listed user without key",
			token:     "paid-strict",
			principal: ada,
			want:      Deny(ReasonGroupKeyRequired),
		},
		{
			name:      "mandatory key blocks listed user with wrong key",
			token:     "paid-strict",
			principal: ada,
			groupKey:  "wrong-key",
			want:      Deny(ReasonGroupKeyRequired),
		},
		{
			name:      "mandatory key admits listed user with key",
			token:     "paid-strict",
			principal: ada,
			groupKey:  "cohort-key",
			want:      Allow("paid"),
		},
		{
			name:      "future expiry still allows",
			token:     "paid-future",
			principal: ada,
			want:      Allow("paid"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newTestEvaluator(repo)
			verdict, err := eval.CheckAccess(context.Background(), tt.token, tt.principal, tt.groupKey, "visitor-1")
			if err != nil {
				t.Fatalf("CheckAccess() error = %v", err)
			}
			if verdict != tt.want {
				t.Errorf("CheckAccess() = %+v, want %+v", verdict, tt.want)
			}
		})
	}
}

func TestCheckAccessExpiryBoundary(t *testing.T) {
	repo := newMockLinkRepo()
	eval := newTestEvaluator(repo)

	instant := time.Now().UTC()
	eval.now = func() time.Time { return instant }
	repo.links["edge"] = &domain.AccessLink{Token: "edge", IsFree: true, ExpiresAt: &instant}

	// Expiry exactly equal to now counts as expired.
	verdict, err := eval.CheckAccess(context.Background(), "edge", nil, "", "v")
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if verdict.Allowed || verdict.Reason != ReasonExpired {
		t.Errorf("verdict at expiry instant = %+v, want DENY(expired)", verdict)
	}
}

func TestCheckAccessRecordsVisitsOnlyOnAllow(t *testing.T) {
	repo := newMockLinkRepo()
	repo.links["free"] = &domain.AccessLink{Token: "free", IsFree: true}
	repo.links["paid"] = &domain.AccessLink{Token: "paid", AllowedUsers: []string{"ada"}}
	eval := newTestEvaluator(repo)

	ctx := context.Background()
	if _, err := eval.CheckAccess(ctx, "free", nil, "", "v1"); err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if _, err := eval.CheckAccess(ctx, "paid", nil, "", "v1"); err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if _, err := eval.CheckAccess(ctx, "paid", &domain.Principal{ID: "mallory"}, "", "v1"); err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if _, err := eval.CheckAccess(ctx, "missing", nil, "", "v1"); err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}

	if len(repo.visits) != 1 || repo.visits[0] != "free" {
		t.Errorf("recorded visits = %v, want exactly one for %q", repo.visits, "free")
	}
}

func TestCheckAccessStoreUnavailable(t *testing.T) {
	repo := newMockLinkRepo()
	repo.getErr = errors.New("connection refused")
	eval := newTestEvaluator(repo)

	_, err := eval.CheckAccess(context.Background(), "any", nil, "", "v")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("CheckAccess() error = %v, want ErrStoreUnavailable", err)
	}
}

// fakeCache is a minimal in-test cache.
type fakeCache struct {
	data map[string][]byte
	gets int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, repository.ErrCacheMiss
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.data[key]
	return ok, nil
}

var _ repository.Cache = (*fakeCache)(nil)

func TestCheckAccessCachedLinkKeepsGroupKeys(t *testing.T) {
	repo := newMockLinkRepo()
	repo.links["paid"] = &domain.AccessLink{
		Token:     "paid",
		GroupKeys: []domain.GroupKey{{KeyHash: mustHash(t, "cohort-key")}},
	}

	cache := newFakeCache()
	eval := NewEvaluator(repo, cache, time.Minute, nil, zerolog.Nop())
	mallory := &domain.Principal{ID: "mallory"}
	ctx := context.Background()

	// First check populates the cache.
	verdict, err := eval.CheckAccess(ctx, "paid", mallory, "cohort-key", "v1")
	if err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if !verdict.Allowed {
		t.Fatalf("first check = %+v, want allow", verdict)
	}

	// Second check must hit the cache and still verify the group key.
	repo.getErr = errors.New("store must not be consulted")
	verdict, err = eval.CheckAccess(ctx, "paid", mallory, "cohort-key", "v1")
	if err != nil {
		t.Fatalf("cached CheckAccess() error = %v", err)
	}
	if !verdict.Allowed {
		t.Errorf("cached check = %+v, want allow", verdict)
	}
}

func TestInvalidateLink(t *testing.T) {
	repo := newMockLinkRepo()
	repo.links["paid"] = &domain.AccessLink{Token: "paid", IsFree: true}

	cache := newFakeCache()
	eval := NewEvaluator(repo, cache, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	if _, err := eval.CheckAccess(ctx, "paid", nil, "", "v1"); err != nil {
		t.Fatalf("CheckAccess() error = %v", err)
	}
	if len(cache.data) == 0 {
		t.Fatal("expected cache to be populated")
	}

	eval.InvalidateLink(ctx, "paid")
	if len(cache.data) != 0 {
		t.Error("expected cache entry to be dropped")
	}
}
