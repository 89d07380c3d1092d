// Package domain contains the core business entities for Gatehouse.
package domain

import (
	"time"
)

// PrepAccessStatus represents the lifecycle status of an entitlement.
type PrepAccessStatus string

const (
	// PrepAccessStatusActive indicates the entitlement can grant access.
	PrepAccessStatusActive PrepAccessStatus = "active"

	// PrepAccessStatusArchived indicates the entitlement is deactivated.
	// Archived entitlements never grant access regardless of dates.
	PrepAccessStatusArchived PrepAccessStatus = "archived"
)

// PrepAccess is a time-boxed entitlement granting one user access to one
// exam's content. At most one entitlement per (UserEmail, ExamID) pair is
// current.
type PrepAccess struct {
	// ID is the unique identifier for the entitlement record.
	ID int64 `json:"id"`

	// UserEmail and ExamID form the composite identity of the entitlement.
	UserEmail string `json:"user_email"`
	ExamID    string `json:"exam_id"`

	// StartAt and ExpiryAt bound the active window.
	StartAt  time.Time `json:"start_at"`
	ExpiryAt time.Time `json:"expiry_at"`

	// PlanDays is the window length in days, informational.
	PlanDays int `json:"plan_days"`

	// Status is active or archived.
	Status PrepAccessStatus `json:"status"`

	// CreatedAt is the timestamp when the entitlement was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewPrepAccess creates an active entitlement starting now and running for
// planDays days.
func NewPrepAccess(userEmail, examID string, planDays int) *PrepAccess {
	now := time.Now().UTC()
	return &PrepAccess{
		UserEmail: userEmail,
		ExamID:    examID,
		StartAt:   now,
		ExpiryAt:  now.Add(time.Duration(planDays) * 24 * time.Hour),
		PlanDays:  planDays,
		Status:    PrepAccessStatusActive,
		CreatedAt: now,
	}
}

// IsActive returns true if the entitlement grants access at the given
// instant. Archived status overrides the dates: expiry is computed on
// read, explicit deactivation is authoritative.
func (p *PrepAccess) IsActive(now time.Time) bool {
	if p.Status != PrepAccessStatusActive {
		return false
	}
	return now.Before(p.ExpiryAt)
}
