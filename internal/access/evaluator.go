package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/pkg/crypto"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// DecisionRecorder receives the outcome of every evaluated check.
// Satisfied by the metrics package; nil disables recording.
type DecisionRecorder interface {
	RecordDecision(allowed bool, reason string)
}

// Evaluator decides access checks against stored links.
type Evaluator struct {
	links    repository.AccessLinkRepository
	cache    repository.Cache
	cacheTTL time.Duration
	recorder DecisionRecorder
	logger   zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewEvaluator creates an access evaluator. cache may be nil to disable
// the read-through link cache; recorder may be nil to disable metrics.
func NewEvaluator(
	links repository.AccessLinkRepository,
	cache repository.Cache,
	cacheTTL time.Duration,
	recorder DecisionRecorder,
	logger zerolog.Logger,
) *Evaluator {
	return &Evaluator{
		links:    links,
		cache:    cache,
		cacheTTL: cacheTTL,
		recorder: recorder,
		logger:   logger.With().Str("component", "access").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CheckAccess evaluates whether the requester may see the content behind
// the token. principal is nil for guests; groupKey is the presented key,
// empty when none; visitorID identifies the requester for visit tracking.
//
// A denial is a Verdict, not an error. The returned error is non-nil only
// for infrastructure failures, wrapped in domain.ErrStoreUnavailable, and
// in that case the Verdict is meaningless.
func (e *Evaluator) CheckAccess(ctx context.Context, token string, principal *domain.Principal, groupKey, visitorID string) (Verdict, error) {
	link, err := e.resolveLink(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return e.deny(ReasonNoLink), nil
		}
		return Verdict{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if link.IsExpired(e.now()) {
		return e.deny(ReasonExpired), nil
	}

	if link.IsFree {
		return e.allow(ctx, link, visitorID)
	}

	if principal == nil {
		return e.deny(ReasonNoUser), nil
	}

	hasValidKey := groupKey != "" && e.matchGroupKey(link, groupKey)

	// A mandatory group key gates everyone, listed users included.
	if link.RequireGroupKey && !hasValidKey {
		return e.deny(ReasonGroupKeyRequired), nil
	}

	if link.IsAllowedUser(principal.ID) || hasValidKey {
		return e.allow(ctx, link, visitorID)
	}

	return e.deny(ReasonNotInList), nil
}

// allow records the visit and returns an allowing verdict. The visit is
// recorded before the verdict is returned so the counter can never miss
// an allowed check.
func (e *Evaluator) allow(ctx context.Context, link *domain.AccessLink, visitorID string) (Verdict, error) {
	if err := e.links.RecordVisit(ctx, link.Token, visitorID); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	if e.recorder != nil {
		e.recorder.RecordDecision(true, "")
	}
	e.logger.Debug().
		Str("token", link.Token).
		Str("mode", string(link.Mode())).
		Msg("access allowed")

	return Allow(string(link.Mode())), nil
}

// deny returns a denying verdict with the given reason.
func (e *Evaluator) deny(reason Reason) Verdict {
	if e.recorder != nil {
		e.recorder.RecordDecision(false, string(reason))
	}
	return Deny(reason)
}

// matchGroupKey checks the presented key against every stored hash.
func (e *Evaluator) matchGroupKey(link *domain.AccessLink, presented string) bool {
	for i := range link.GroupKeys {
		if crypto.VerifyKey(link.GroupKeys[i].KeyHash, presented) {
			return true
		}
	}
	return false
}

// resolveLink fetches the link, via the read-through cache when one is
// configured. Cache failures degrade to a direct store read.
func (e *Evaluator) resolveLink(ctx context.Context, token string) (*domain.AccessLink, error) {
	if e.cache == nil {
		return e.links.GetByToken(ctx, token)
	}

	cacheKey := linkCacheKey(token)
	if data, err := e.cache.Get(ctx, cacheKey); err == nil {
		var cached cachedLink
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached.toDomain(), nil
		}
		// Corrupt entry; drop it and fall through to the store.
		_ = e.cache.Delete(ctx, cacheKey)
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		e.logger.Warn().Err(err).Msg("link cache read failed")
	}

	link, err := e.links.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(newCachedLink(link)); err == nil {
		if err := e.cache.Set(ctx, cacheKey, data, e.cacheTTL); err != nil {
			e.logger.Warn().Err(err).Msg("link cache write failed")
		}
	}

	return link, nil
}

// cachedLink is the cache serialization of an AccessLink. It exists
// because the domain type hides key hashes from JSON; the cache needs
// them to evaluate group keys on a hit.
type cachedLink struct {
	ID              int64      `json:"id"`
	Token           string     `json:"token"`
	TargetID        string     `json:"target_id"`
	IsFree          bool       `json:"is_free"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AllowedUsers    []string   `json:"allowed_users,omitempty"`
	GroupKeyHashes  []string   `json:"group_key_hashes,omitempty"`
	RequireGroupKey bool       `json:"require_group_key"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newCachedLink(link *domain.AccessLink) *cachedLink {
	c := &cachedLink{
		ID:              link.ID,
		Token:           link.Token,
		TargetID:        link.TargetID,
		IsFree:          link.IsFree,
		ExpiresAt:       link.ExpiresAt,
		AllowedUsers:    link.AllowedUsers,
		RequireGroupKey: link.RequireGroupKey,
		CreatedAt:       link.CreatedAt,
	}
	for i := range link.GroupKeys {
		c.GroupKeyHashes = append(c.GroupKeyHashes, link.GroupKeys[i].KeyHash)
	}
	return c
}

func (c *cachedLink) toDomain() *domain.AccessLink {
	link := &domain.AccessLink{
		ID:              c.ID,
		Token:           c.Token,
		TargetID:        c.TargetID,
		IsFree:          c.IsFree,
		ExpiresAt:       c.ExpiresAt,
		AllowedUsers:    c.AllowedUsers,
		RequireGroupKey: c.RequireGroupKey,
		CreatedAt:       c.CreatedAt,
	}
	for _, hash := range c.GroupKeyHashes {
		link.GroupKeys = append(link.GroupKeys, domain.GroupKey{KeyHash: hash})
	}
	return link
}

// InvalidateLink drops the cached copy of a link after a mutation.
func (e *Evaluator) InvalidateLink(ctx context.Context, token string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Delete(ctx, linkCacheKey(token)); err != nil {
		e.logger.Warn().Err(err).Msg("link cache invalidation failed")
	}
}

// linkCacheKey builds the cache key for a token.
func linkCacheKey(token string) string {
	return "link:" + token
}
