package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// prepAccessRepository implements repository.PrepAccessRepository for PostgreSQL.
type prepAccessRepository struct {
	db *DB
}

// NewPrepAccessRepository creates a new PostgreSQL prep access repository.
func NewPrepAccessRepository(db *DB) repository.PrepAccessRepository {
	return &prepAccessRepository{db: db}
}

// Create creates a new entitlement.
func (r *prepAccessRepository) Create(ctx context.Context, access *domain.PrepAccess) error {
	query := `
		INSERT INTO prep_access (user_email, exam_id, start_at, expiry_at, plan_days, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		access.UserEmail,
		access.ExamID,
		access.StartAt,
		access.ExpiryAt,
		access.PlanDays,
		access.Status,
		access.CreatedAt,
	).Scan(&access.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPrepAccessExists
		}
		return fmt.Errorf("failed to create prep access: %w", err)
	}

	return nil
}

// Get retrieves the entitlement for a (userEmail, examID) pair.
func (r *prepAccessRepository) Get(ctx context.Context, userEmail, examID string) (*domain.PrepAccess, error) {
	query := `
		SELECT id, user_email, exam_id, start_at, expiry_at, plan_days, status, created_at
		FROM prep_access
		WHERE user_email = $1 AND exam_id = $2
	`

	access := &domain.PrepAccess{}
	err := r.db.Pool.QueryRow(ctx, query, userEmail, examID).Scan(
		&access.ID,
		&access.UserEmail,
		&access.ExamID,
		&access.StartAt,
		&access.ExpiryAt,
		&access.PlanDays,
		&access.Status,
		&access.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPrepAccessNotFound
		}
		return nil, fmt.Errorf("failed to get prep access: %w", err)
	}

	return access, nil
}

// UpdateStatus sets the status of an entitlement.
func (r *prepAccessRepository) UpdateStatus(ctx context.Context, userEmail, examID string, status domain.PrepAccessStatus) error {
	query := `UPDATE prep_access SET status = $1 WHERE user_email = $2 AND exam_id = $3`

	tag, err := r.db.Pool.Exec(ctx, query, status, userEmail, examID)
	if err != nil {
		return fmt.Errorf("failed to update prep access status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrPrepAccessNotFound
	}

	return nil
}

// ArchiveExpired flips active entitlements past their expiry to archived.
func (r *prepAccessRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE prep_access SET status = $1 WHERE status = $2 AND expiry_at <= $3`

	tag, err := r.db.Pool.Exec(ctx, query,
		domain.PrepAccessStatusArchived,
		domain.PrepAccessStatusActive,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired prep access: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Ensure prepAccessRepository implements repository.PrepAccessRepository.
var _ repository.PrepAccessRepository = (*prepAccessRepository)(nil)
