// Package domain contains the core business entities for Gatehouse.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.):
// callers must never conflate a StoreUnavailable failure with a denial.

var (
	// ===========================================
	// Authorization Taxonomy
	// ===========================================

	// ErrNotFound indicates a token or record is absent.
	// Safe to expose to link-check clients as a DENY(no_link).
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates a time-based denial, distinct from ErrNotFound
	// for client messaging.
	ErrExpired = errors.New("expired")

	// ErrUnauthenticated indicates a strict session gate saw no valid
	// credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized indicates the principal is known but lacks rights.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the owner/admin secret did not match.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable indicates an infrastructure failure. It must
	// propagate as a 5xx-class signal, never be coerced into a denial.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrMalformed indicates an invalid token shape or id format.
	ErrMalformed = errors.New("malformed input")

	// ===========================================
	// Link Errors
	// ===========================================

	// ErrLinkNotFound indicates the requested access link does not exist.
	ErrLinkNotFound = errors.New("access link not found")

	// ErrLinkAlreadyExists indicates a link with the same token exists.
	ErrLinkAlreadyExists = errors.New("access link already exists")

	// ErrInvalidLinkMode indicates the mode is not "free" or "paid".
	ErrInvalidLinkMode = errors.New("link mode must be 'free' or 'paid'")

	// ErrInvalidGroupKey indicates an empty or malformed group key.
	ErrInvalidGroupKey = errors.New("invalid group key")

	// ===========================================
	// Entitlement Errors
	// ===========================================

	// ErrPrepAccessNotFound indicates no entitlement exists for the pair.
	ErrPrepAccessNotFound = errors.New("prep access not found")

	// ErrPrepAccessExists indicates an entitlement already exists for
	// the (user_email, exam_id) pair.
	ErrPrepAccessExists = errors.New("prep access already exists")

	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserInactive indicates the user account is disabled.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g. link token).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
