package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const MaxKeyLength = 64

// Setting is one user preference. Value holds any JSON document; the
// column is text so SQLite keeps scalars like 14 as their JSON form.
type Setting struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID   `gorm:"not null;uniqueIndex:ux_settings_user_key,priority:1" json:"user_id"`
	Key       string         `gorm:"column:setting_key;type:varchar(64);not null;uniqueIndex:ux_settings_user_key,priority:2" json:"key"`
	Value     datatypes.JSON `gorm:"type:text" json:"value"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

type Service interface {
	Get(ctx context.Context) (map[string]any, error)
	Save(ctx context.Context, values map[string]any) (map[string]any, error)
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidKey   = errors.New("invalid_setting_key")
	ErrInvalidValue = errors.New("invalid_setting_value")
)
