package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// PrepAccessService handles exam-prep entitlements.
type PrepAccessService struct {
	prepRepo repository.PrepAccessRepository
	logger   zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewPrepAccessService creates a new PrepAccessService.
func NewPrepAccessService(prepRepo repository.PrepAccessRepository, logger zerolog.Logger) *PrepAccessService {
	return &PrepAccessService{
		prepRepo: prepRepo,
		logger:   logger.With().Str("service", "prep_access").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// GrantInput contains the data needed to grant an entitlement.
type GrantInput struct {
	UserEmail string
	ExamID    string
	PlanDays  int
}

// GrantOutput contains the created entitlement.
type GrantOutput struct {
	Access *domain.PrepAccess
}

// CheckOutput is the entitlement check result.
type CheckOutput struct {
	// Active reports whether the entitlement currently grants access.
	Active bool

	// Status is the stored status, empty when no entitlement exists.
	Status domain.PrepAccessStatus

	// ExpiryAt is the expiry instant, zero when no entitlement exists.
	ExpiryAt time.Time
}

// =============================================================================
// Service Methods
// =============================================================================

// Grant creates an entitlement for a (userEmail, examID) pair.
func (s *PrepAccessService) Grant(ctx context.Context, input GrantInput) (*GrantOutput, error) {
	if strings.TrimSpace(input.UserEmail) == "" {
		return nil, ErrInvalidEmail
	}
	if strings.TrimSpace(input.ExamID) == "" {
		return nil, ErrInvalidExamID
	}
	if input.PlanDays <= 0 {
		return nil, ErrInvalidPlanDays
	}

	access := domain.NewPrepAccess(input.UserEmail, input.ExamID, input.PlanDays)
	if err := s.prepRepo.Create(ctx, access); err != nil {
		if errors.Is(err, domain.ErrPrepAccessExists) {
			return nil, domain.ErrPrepAccessExists
		}
		s.logger.Error().Err(err).Str("exam_id", input.ExamID).Msg("failed to grant prep access")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().
		Str("exam_id", access.ExamID).
		Int("plan_days", access.PlanDays).
		Time("expiry_at", access.ExpiryAt).
		Msg("prep access granted")

	return &GrantOutput{Access: access}, nil
}

// Check reports whether the entitlement currently grants access.
// A missing entitlement is an inactive result, not an error; activity is
// computed at read time, so a record past its expiry reports inactive
// even before the background sweep archives it.
func (s *PrepAccessService) Check(ctx context.Context, userEmail, examID string) (*CheckOutput, error) {
	access, err := s.prepRepo.Get(ctx, userEmail, examID)
	if err != nil {
		if errors.Is(err, domain.ErrPrepAccessNotFound) {
			return &CheckOutput{Active: false}, nil
		}
		s.logger.Error().Err(err).Str("exam_id", examID).Msg("failed to check prep access")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &CheckOutput{
		Active:   access.IsActive(s.now()),
		Status:   access.Status,
		ExpiryAt: access.ExpiryAt,
	}, nil
}

// Archive marks an entitlement archived. Archived entitlements never
// report active again regardless of expiry.
func (s *PrepAccessService) Archive(ctx context.Context, userEmail, examID string) error {
	err := s.prepRepo.UpdateStatus(ctx, userEmail, examID, domain.PrepAccessStatusArchived)
	if err != nil {
		if errors.Is(err, domain.ErrPrepAccessNotFound) {
			return domain.ErrPrepAccessNotFound
		}
		s.logger.Error().Err(err).Str("exam_id", examID).Msg("failed to archive prep access")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.logger.Info().Str("exam_id", examID).Msg("prep access archived")
	return nil
}
