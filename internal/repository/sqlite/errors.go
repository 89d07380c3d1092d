package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// isNoRows reports whether err is a no-rows result.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports whether err is a unique constraint violation.
// modernc.org/sqlite surfaces these as plain errors, so we match the
// SQLite error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseTime decodes an RFC3339 timestamp stored as text. A row that fails
// to parse is corrupt and must surface as an error, not a zero time.
func parseTime(value, column string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}
