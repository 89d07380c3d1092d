// Package service provides business logic services for Gatehouse.
package service

import "errors"

// Common service errors.
var (
	// Link errors
	ErrInvalidTargetID = errors.New("invalid target id: must not be empty")
	ErrInvalidTTL      = errors.New("invalid ttl_hours: must be -1 (no expiry) or >= 0")
	ErrInvalidUserID   = errors.New("invalid user id: must not be empty")

	// Entitlement errors
	ErrInvalidEmail    = errors.New("invalid email: must not be empty")
	ErrInvalidExamID   = errors.New("invalid exam id: must not be empty")
	ErrInvalidPlanDays = errors.New("invalid plan days: must be positive")

	// User errors
	ErrInvalidPassword = errors.New("invalid password: must be at least 8 characters")
	ErrInvalidUsername = errors.New("invalid username: must be 3-255 characters")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
