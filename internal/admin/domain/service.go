package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Admin, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*Admin, error)
	List(ctx context.Context, db *gorm.DB) ([]Admin, error)
	CountByRole(ctx context.Context, db *gorm.DB, role string) (int64, error)
	Insert(ctx context.Context, db *gorm.DB, admin *Admin) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	IncrementFailedAttempts(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	Lock(ctx context.Context, db *gorm.DB, id snowflake.ID, until time.Time) error
	MarkLoginSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	UpdateCodeHash(ctx context.Context, db *gorm.DB, id snowflake.ID, hash string, at time.Time) error
}

type Service interface {
	// VerifyAdmin checks email and code against the lockout state machine.
	VerifyAdmin(ctx context.Context, email, code string) (*Admin, error)
	AddAdmin(ctx context.Context, actorID snowflake.ID, email, role string) (*Admin, string, error)
	DeleteAdmin(ctx context.Context, actorID, adminID snowflake.ID) error
	ChangeCode(ctx context.Context, actorID, adminID snowflake.ID, newCode string) error
	RecordLogout(ctx context.Context, adminID snowflake.ID) error
	ListAdmins(ctx context.Context) ([]Admin, error)
	GetAdmin(ctx context.Context, id snowflake.ID) (*Admin, error)
}
