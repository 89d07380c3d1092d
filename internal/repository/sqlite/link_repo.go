package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paragon-edu/gatehouse/internal/domain"
	"github.com/paragon-edu/gatehouse/internal/repository"
)

// accessLinkRepository implements repository.AccessLinkRepository for SQLite.
type accessLinkRepository struct {
	db *DB
}

// NewAccessLinkRepository creates a new SQLite access link repository.
func NewAccessLinkRepository(db *DB) repository.AccessLinkRepository {
	return &accessLinkRepository{db: db}
}

// Create creates a new access link.
func (r *accessLinkRepository) Create(ctx context.Context, link *domain.AccessLink) error {
	query := `
		INSERT INTO access_links (token, target_id, is_free, require_group_key, expires_at, visits, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`

	var expiresAt sql.NullString
	if link.ExpiresAt != nil {
		expiresAt = sql.NullString{String: link.ExpiresAt.UTC().Format(time.RFC3339), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		link.Token,
		link.TargetID,
		link.IsFree,
		link.RequireGroupKey,
		expiresAt,
		link.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLinkAlreadyExists
		}
		return fmt.Errorf("failed to create access link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	link.ID = id

	return nil
}

// GetByToken retrieves a link by its share token, including the allow-list
// and group keys.
func (r *accessLinkRepository) GetByToken(ctx context.Context, token string) (*domain.AccessLink, error) {
	query := `
		SELECT id, token, target_id, is_free, require_group_key, expires_at, visits, created_at
		FROM access_links
		WHERE token = ?
	`

	link := &domain.AccessLink{}
	var createdAt string
	var expiresAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&link.ID,
		&link.Token,
		&link.TargetID,
		&link.IsFree,
		&link.RequireGroupKey,
		&expiresAt,
		&link.Visits,
		&createdAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get access link: %w", err)
	}

	if link.CreatedAt, err = parseTime(createdAt, "access link created_at"); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String, "access link expires_at")
		if err != nil {
			return nil, err
		}
		link.ExpiresAt = &t
	}

	if err := r.loadAllowedUsers(ctx, link); err != nil {
		return nil, err
	}
	if err := r.loadGroupKeys(ctx, link); err != nil {
		return nil, err
	}

	return link, nil
}

// loadAllowedUsers fills the link's allow-list.
func (r *accessLinkRepository) loadAllowedUsers(ctx context.Context, link *domain.AccessLink) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM link_allowed_users WHERE link_id = ? ORDER BY user_id`, link.ID)
	if err != nil {
		return fmt.Errorf("failed to list allowed users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return fmt.Errorf("failed to scan allowed user: %w", err)
		}
		link.AllowedUsers = append(link.AllowedUsers, userID)
	}
	return rows.Err()
}

// loadGroupKeys fills the link's group keys in insertion order.
func (r *accessLinkRepository) loadGroupKeys(ctx context.Context, link *domain.AccessLink) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, key_hash, position FROM link_group_keys WHERE link_id = ? ORDER BY position, id`, link.ID)
	if err != nil {
		return fmt.Errorf("failed to list group keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key domain.GroupKey
		if err := rows.Scan(&key.ID, &key.Label, &key.KeyHash, &key.Position); err != nil {
			return fmt.Errorf("failed to scan group key: %w", err)
		}
		link.GroupKeys = append(link.GroupKeys, key)
	}
	return rows.Err()
}

// AddAllowedUser adds userID to the link's allow-list.
func (r *accessLinkRepository) AddAllowedUser(ctx context.Context, token, userID string) error {
	query := `
		INSERT OR IGNORE INTO link_allowed_users (link_id, user_id)
		SELECT id, ? FROM access_links WHERE token = ?
	`

	result, err := r.db.ExecContext(ctx, query, userID, token)
	if err != nil {
		return fmt.Errorf("failed to add allowed user: %w", err)
	}

	// Zero rows can mean either "link missing" or "already listed";
	// only the former is an error.
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		if err := r.linkExists(ctx, token); err != nil {
			return err
		}
	}

	return nil
}

// RemoveAllowedUser removes userID from the link's allow-list. Idempotent.
func (r *accessLinkRepository) RemoveAllowedUser(ctx context.Context, token, userID string) error {
	if err := r.linkExists(ctx, token); err != nil {
		return err
	}

	query := `
		DELETE FROM link_allowed_users
		WHERE user_id = ? AND link_id = (SELECT id FROM access_links WHERE token = ?)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, token); err != nil {
		return fmt.Errorf("failed to remove allowed user: %w", err)
	}

	return nil
}

// AddGroupKey appends a group key to the link.
func (r *accessLinkRepository) AddGroupKey(ctx context.Context, token string, key *domain.GroupKey) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var linkID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM access_links WHERE token = ?`, token).Scan(&linkID)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrLinkNotFound
			}
			return fmt.Errorf("failed to resolve link: %w", err)
		}

		var position int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), -1) + 1 FROM link_group_keys WHERE link_id = ?`, linkID).Scan(&position)
		if err != nil {
			return fmt.Errorf("failed to compute key position: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO link_group_keys (link_id, label, key_hash, position) VALUES (?, ?, ?, ?)`,
			linkID, key.Label, key.KeyHash, position)
		if err != nil {
			return fmt.Errorf("failed to add group key: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		key.ID = id
		key.Position = position

		return nil
	})
}

// RecordVisit atomically increments the visit counter and inserts the
// visitor id if absent. Both statements run at the storage layer inside one
// transaction, so concurrent allowed checks neither lose increments nor
// duplicate visitors.
func (r *accessLinkRepository) RecordVisit(ctx context.Context, token, visitorID string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE access_links SET visits = visits + 1 WHERE token = ?`, token)
		if err != nil {
			return fmt.Errorf("failed to increment visits: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			return domain.ErrLinkNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO link_visitors (link_id, visitor_id, first_seen_at)
			SELECT id, ?, ? FROM access_links WHERE token = ?
		`, visitorID, time.Now().UTC().Format(time.RFC3339), token)
		if err != nil {
			return fmt.Errorf("failed to record visitor: %w", err)
		}

		return nil
	})
}

// GetStats returns the visit count and distinct visitor count.
func (r *accessLinkRepository) GetStats(ctx context.Context, token string) (*domain.LinkStats, error) {
	query := `
		SELECT l.visits, COUNT(v.visitor_id)
		FROM access_links l
		LEFT JOIN link_visitors v ON v.link_id = l.id
		WHERE l.token = ?
		GROUP BY l.id
	`

	stats := &domain.LinkStats{Token: token}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&stats.Visits, &stats.UniqueVisitors)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link stats: %w", err)
	}

	return stats, nil
}

// PruneVisitors deletes visitor rows for links expired before the cutoff.
func (r *accessLinkRepository) PruneVisitors(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM link_visitors
		WHERE link_id IN (
			SELECT id FROM access_links
			WHERE expires_at IS NOT NULL AND expires_at < ?
		)
	`

	result, err := r.db.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune visitors: %w", err)
	}

	return result.RowsAffected()
}

// linkExists returns domain.ErrLinkNotFound if no link has the token.
func (r *accessLinkRepository) linkExists(ctx context.Context, token string) error {
	var id int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM access_links WHERE token = ?`, token).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrLinkNotFound
		}
		return fmt.Errorf("failed to check link existence: %w", err)
	}
	return nil
}

// Ensure accessLinkRepository implements repository.AccessLinkRepository.
var _ repository.AccessLinkRepository = (*accessLinkRepository)(nil)
