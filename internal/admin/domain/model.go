// Package domain holds the admin console account model and its lockout
// policy.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"

	CodeLength    = 6
	MinCodeLength = 6
)

// Admin is an admin console account. CodeHash never leaves the service.
type Admin struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Email          string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	CodeHash       string       `gorm:"column:code_hash;type:text;not null" json:"-"`
	Role           string       `gorm:"type:varchar(16);not null;default:'admin';index" json:"role"`
	FailedAttempts int          `gorm:"column:failed_attempts;not null;default:0" json:"failed_attempts"`
	LockedUntil    *time.Time   `gorm:"column:locked_until" json:"locked_until,omitempty"`
	LastLogin      *time.Time   `gorm:"column:last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Admin) TableName() string { return "admins" }

// IsLocked reports whether a lock is in force at now. An expired lock is
// treated as absent.
func (a Admin) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Redacted returns a copy without the code hash.
func (a Admin) Redacted() Admin {
	a.CodeHash = ""
	return a
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 3, Duration: 5 * time.Minute}
}

// Normalize replaces non-positive values with the defaults.
func (p LockoutPolicy) Normalize() LockoutPolicy {
	def := DefaultLockoutPolicy()
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.Duration <= 0 {
		p.Duration = def.Duration
	}
	return p
}
