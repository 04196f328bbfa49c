package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Entry is what callers hand to Record; id, ip and timestamp are filled in.
type Entry struct {
	AdminID  snowflake.ID
	Action   string
	Details  string
	Metadata map[string]any
}

type ListRequest struct {
	Limit   int
	Action  string
	AdminID snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Activity) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]ActivityView, error)
}

type Service interface {
	// Record appends entry using tx so it commits or rolls back with the
	// caller's write.
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListRequest) ([]ActivityView, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidAdmin  = errors.New("invalid_admin")
)
