package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// prepAccessRepository implements repository.PrepAccessRepository for SQLite.
type prepAccessRepository struct {
	db *DB
}

// NewPrepAccessRepository creates a new SQLite prep access repository.
func NewPrepAccessRepository(db *DB) repository.PrepAccessRepository {
	return &prepAccessRepository{db: db}
}

// Create creates a new entitlement.
func (r *prepAccessRepository) Create(ctx context.Context, access *domain.PrepAccess) error {
	query := `
		INSERT INTO prep_access (user_email, exam_id, start_at, expiry_at, plan_days, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		access.UserEmail,
		access.ExamID,
		access.StartAt.UTC().Format(time.RFC3339),
		access.ExpiryAt.UTC().Format(time.RFC3339),
		access.PlanDays,
		access.Status,
		access.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPrepAccessExists
		}
		return fmt.Errorf("failed to create prep access: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	access.ID = id

	return nil
}

// Get retrieves the entitlement for a (userEmail, examID) pair.
func (r *prepAccessRepository) Get(ctx context.Context, userEmail, examID string) (*domain.PrepAccess, error) {
	query := `
		SELECT id, user_email, exam_id, start_at, expiry_at, plan_days, status, created_at
		FROM prep_access
		WHERE user_email = ? AND exam_id = ?
	`

	access := &domain.PrepAccess{}
	var startAt, expiryAt, createdAt string

	err := r.db.QueryRowContext(ctx, query, userEmail, examID).Scan(
		&access.ID,
		&access.UserEmail,
		&access.ExamID,
		&startAt,
		&expiryAt,
		&access.PlanDays,
		&access.Status,
		&createdAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPrepAccessNotFound
		}
		return nil, fmt.Errorf("failed to get prep access: %w", err)
	}

	if access.StartAt, err = parseTime(startAt, "prep access start_at"); err != nil {
		return nil, err
	}
	if access.ExpiryAt, err = parseTime(expiryAt, "prep access expiry_at"); err != nil {
		return nil, err
	}
	if access.CreatedAt, err = parseTime(createdAt, "prep access created_at"); err != nil {
		return nil, err
	}

	return access, nil
}

// UpdateStatus sets the status of an entitlement.
func (r *prepAccessRepository) UpdateStatus(ctx context.Context, userEmail, examID string, status domain.PrepAccessStatus) error {
	query := `UPDATE prep_access SET status = ? WHERE user_email = ? AND exam_id = ?`

	result, err := r.db.ExecContext(ctx, query, status, userEmail, examID)
	if err != nil {
		return fmt.Errorf("failed to update prep access status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrPrepAccessNotFound
	}

	return nil
}

// ArchiveExpired flips active entitlements past their expiry to archived.
func (r *prepAccessRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE prep_access SET status = ? WHERE status = ? AND expiry_at <= ?`

	result, err := r.db.ExecContext(ctx, query,
		domain.PrepAccessStatusArchived,
		domain.PrepAccessStatusActive,
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to archive expired prep access: %w", err)
	}

	return result.RowsAffected()
}

// Ensure prepAccessRepository implements repository.PrepAccessRepository.
var _ repository.PrepAccessRepository = (*prepAccessRepository)(nil)
