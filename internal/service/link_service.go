// Package service provides business logic services for Gatehouse.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/access"
	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/pkg/crypto"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// NoExpiry is the ttl_hours sentinel for links that never expire.
const NoExpiry = -1

// LinkService handles access link management.
type LinkService struct {
	linkRepo   repository.AccessLinkRepository
	evaluator  *access.Evaluator
	bcryptCost int
	defaultTTL int
	logger     zerolog.Logger
}

// NewLinkService creates a new LinkService. defaultTTLHours applies when
// a link is created without an explicit lifetime.
func NewLinkService(
	linkRepo repository.AccessLinkRepository,
	evaluator *access.Evaluator,
	bcryptCost int,
	defaultTTLHours int,
	logger zerolog.Logger,
) *LinkService {
	return &LinkService{
		linkRepo:   linkRepo,
		evaluator:  evaluator,
		bcryptCost: bcryptCost,
		defaultTTL: defaultTTLHours,
		logger:     logger.With().Str("service", "link").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// CreateLinkInput contains the data needed to create a link.
type CreateLinkInput struct {
	TargetID string
	Mode     domain.LinkMode

	// TTLHours is the link lifetime in hours. Nil applies the service
	// default; NoExpiry (-1) creates a link that never expires; 0
	// creates a link that is expired from the start.
	TTLHours *int

	// RequireGroupKey makes a valid group key mandatory for every
	// requester, listed users included.
	RequireGroupKey bool
}

// CreateLinkOutput contains the created link.
type CreateLinkOutput struct {
	Link *domain.AccessLink
}

// AddGroupKeyInput contains the data needed to attach a group key.
type AddGroupKeyInput struct {
	Token string
	Label string

	// Key is the plaintext group key. It is hashed before storage and
	// never returned again.
	Key string
}

// AddGroupKeyOutput contains the stored key metadata.
type AddGroupKeyOutput struct {
	ID       int64
	Label    string
	Position int
}

// LinkStatsOutput contains the usage report for a link.
type LinkStatsOutput struct {
	Stats *domain.LinkStats
}

// =============================================================================
// Service Methods
// =============================================================================

// CreateLink mints a fresh token and stores a new access link.
func (s *LinkService) CreateLink(ctx context.Context, input CreateLinkInput) (*CreateLinkOutput, error) {
	if strings.TrimSpace(input.TargetID) == "" {
		return nil, ErrInvalidTargetID
	}
	if !input.Mode.Valid() {
		return nil, domain.ErrInvalidLinkMode
	}

	ttlHours := s.defaultTTL
	if input.TTLHours != nil {
		ttlHours = *input.TTLHours
	}
	if ttlHours < NoExpiry {
		return nil, ErrInvalidTTL
	}

	var expiresAt *time.Time
	if ttlHours != NoExpiry {
		t := time.Now().UTC().Add(time.Duration(ttlHours) * time.Hour)
		expiresAt = &t
	}

	token, err := crypto.NewAccessToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate link token")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	link := domain.NewAccessLink(token, input.TargetID, input.Mode, expiresAt)
	link.RequireGroupKey = input.RequireGroupKey

	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, domain.ErrLinkAlreadyExists) {
			// A 32-byte token collided; treat it as internal rather than
			// surfacing a conflict the caller cannot act on.
			s.logger.Error().Str("target_id", input.TargetID).Msg("link token collision")
		}
		s.logger.Error().Err(err).Str("target_id", input.TargetID).Msg("failed to create link")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("target_id", link.TargetID).
		Str("mode", string(link.Mode())).
		Bool("require_group_key", link.RequireGroupKey).
		Msg("link created")

	return &CreateLinkOutput{Link: link}, nil
}

// GetLink fetches a link by token.
func (s *LinkService) GetLink(ctx context.Context, token string) (*domain.AccessLink, error) {
	link, err := s.linkRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Msg("failed to get link")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return link, nil
}

// AddAllowedUser adds a user to the link's allow-list.
func (s *LinkService) AddAllowedUser(ctx context.Context, token, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	if err := s.linkRepo.AddAllowedUser(ctx, token, userID); err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Msg("failed to add allowed user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.evaluator.InvalidateLink(ctx, token)
	s.logger.Info().Str("user_id", userID).Msg("user added to allow-list")
	return nil
}

// RevokeUser removes a user from the link's allow-list. Revoking an
// absent user succeeds; subsequent checks for that user are denied
// either way.
func (s *LinkService) RevokeUser(ctx context.Context, token, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	if err := s.linkRepo.RemoveAllowedUser(ctx, token, userID); err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Msg("failed to revoke user")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.evaluator.InvalidateLink(ctx, token)
	s.logger.Info().Str("user_id", userID).Msg("user revoked from allow-list")
	return nil
}

// AddGroupKey hashes and attaches a group key to the link.
func (s *LinkService) AddGroupKey(ctx context.Context, input AddGroupKeyInput) (*AddGroupKeyOutput, error) {
	if strings.TrimSpace(input.Key) == "" {
		return nil, domain.ErrInvalidGroupKey
	}

	hash, err := crypto.HashKey(input.Key, s.bcryptCost)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash group key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	key := &domain.GroupKey{
		Label:   input.Label,
		KeyHash: hash,
	}
	if err := s.linkRepo.AddGroupKey(ctx, input.Token, key); err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Msg("failed to add group key")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.evaluator.InvalidateLink(ctx, input.Token)
	s.logger.Info().Str("label", key.Label).Msg("group key attached")

	return &AddGroupKeyOutput{
		ID:       key.ID,
		Label:    key.Label,
		Position: key.Position,
	}, nil
}

// Stats returns the usage report for a link.
func (s *LinkService) Stats(ctx context.Context, token string) (*LinkStatsOutput, error) {
	stats, err := s.linkRepo.GetStats(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Msg("failed to get link stats")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return &LinkStatsOutput{Stats: stats}, nil
}
