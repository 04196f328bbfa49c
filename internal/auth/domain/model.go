// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	SubscriptionTrial = "trial"
	SubscriptionBasic = "basic"
	SubscriptionPro   = "pro"
)

// User represents an account that owns customers, products and invoices.
type User struct {
	ID                    snowflake.ID      `gorm:"primaryKey" json:"id"`
	Email                 string            `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash          string            `gorm:"type:text;not null" json:"-"`
	CompanyName           string            `gorm:"type:text" json:"company_name"`
	FirstName             string            `gorm:"type:text" json:"first_name"`
	LastName              string            `gorm:"type:text" json:"last_name"`
	Phone                 string            `gorm:"type:text" json:"phone"`
	Address               string            `gorm:"type:text" json:"address"`
	City                  string            `gorm:"type:text" json:"city"`
	PostalCode            string            `gorm:"type:text" json:"postal_code"`
	Country               string            `gorm:"type:text" json:"country"`
	Language              string            `gorm:"type:varchar(8);not null;default:'de'" json:"language"`
	SubscriptionType      string            `gorm:"type:varchar(16);not null;default:'trial'" json:"subscription_type"`
	SubscriptionExpiresAt *time.Time        `json:"subscription_expires_at,omitempty"`
	IsActive              bool              `gorm:"not null" json:"is_active"`
	LastPasswordChanged   *time.Time        `json:"-"`
	Metadata              datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session is a persisted login session for either a user or an admin.
// Exactly one of UserID and AdminID is set.
type Session struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	UserID           *snowflake.ID `gorm:"column:user_id;index"`
	AdminID          *snowflake.ID `gorm:"column:admin_id;index"`
	SessionTokenHash string        `gorm:"column:session_token_hash;type:varchar(64);not null;uniqueIndex"`
	UserAgent        string        `gorm:"column:user_agent;type:text"`
	IPAddress        string        `gorm:"column:ip_address;type:varchar(64)"`
	ExpiresAt        time.Time     `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time    `gorm:"column:revoked_at"`
	CreatedAt        time.Time     `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time     `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }
