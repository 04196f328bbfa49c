package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionLogin       = "login"
	ActionLoginFailed = "login_failed"
	ActionLockout     = "lockout"
	ActionLogout      = "logout"
	ActionAddAdmin    = "add_admin"
	ActionDeleteAdmin = "delete_admin"
	ActionChangeCode  = "change_code"
)

// Activity is one append-only admin console event.
type Activity struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	AdminID   snowflake.ID      `gorm:"column:admin_id;not null;index" json:"admin_id"`
	Action    string            `gorm:"type:varchar(32);not null;index" json:"action"`
	Details   string            `gorm:"type:text" json:"details,omitempty"`
	IPAddress *string           `gorm:"column:ip_address;type:varchar(64)" json:"ip_address,omitempty"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

func (Activity) TableName() string { return "admin_activities" }

// ActivityView is an activity joined with the acting admin's email. The
// email is empty when the admin has since been deleted.
type ActivityView struct {
	Activity
	AdminEmail string `json:"admin_email"`
}
