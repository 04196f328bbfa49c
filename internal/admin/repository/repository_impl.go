package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/admin/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"gorm.io/gorm"
)

const adminColumns = `id, email, code_hash, role, failed_attempts, locked_until, last_login, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByEmail(ctx context.Context, conn *gorm.DB, email string) (*domain.Admin, error) {
	var admin domain.Admin
	err := conn.WithContext(ctx).Raw(
		`SELECT `+adminColumns+` FROM admins WHERE email = ?`,
		email,
	).Scan(&admin).Error
	if err != nil {
		return nil, err
	}
	if admin.ID == 0 {
		return nil, domain.ErrAdminNotFound
	}
	return &admin, nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID, forUpdate bool) (*domain.Admin, error) {
	stmt := conn.WithContext(ctx)
	if forUpdate {
		stmt = db.ForUpdate(stmt)
	}

	var admin domain.Admin
	err := stmt.Model(&domain.Admin{}).Where("id = ?", id).Limit(1).Find(&admin).Error
	if err != nil {
		return nil, err
	}
	if admin.ID == 0 {
		return nil, domain.ErrAdminNotFound
	}
	return &admin, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]domain.Admin, error) {
	var admins []domain.Admin
	err := conn.WithContext(ctx).Raw(
		`SELECT ` + adminColumns + ` FROM admins ORDER BY created_at ASC, id ASC`,
	).Scan(&admins).Error
	if err != nil {
		return nil, err
	}
	return admins, nil
}

func (r *repo) CountByRole(ctx context.Context, conn *gorm.DB, role string) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Model(&domain.Admin{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, admin *domain.Admin) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO admins (`+adminColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		admin.ID,
		admin.Email,
		admin.CodeHash,
		admin.Role,
		admin.FailedAttempts,
		admin.LockedUntil,
		admin.LastLogin,
		admin.CreatedAt,
		admin.UpdatedAt,
	).Error
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrAdminExists
	}
	return err
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	res := conn.WithContext(ctx).Exec(`DELETE FROM admins WHERE id = ?`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAdminNotFound
	}
	return nil
}

// IncrementFailedAttempts bumps the counter in the store so concurrent
// failures are never lost to a read-modify-write in Go.
func (r *repo) IncrementFailedAttempts(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE admins SET failed_attempts = failed_attempts + 1 WHERE id = ?`,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAdminNotFound
	}
	return nil
}

func (r *repo) Lock(ctx context.Context, conn *gorm.DB, id snowflake.ID, until time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE admins SET locked_until = ? WHERE id = ?`,
		until, id,
	).Error
}

func (r *repo) MarkLoginSuccess(ctx context.Context, conn *gorm.DB, id snowflake.ID, at time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE admins SET failed_attempts = 0, locked_until = NULL, last_login = ?, updated_at = ? WHERE id = ?`,
		at, at, id,
	).Error
}

func (r *repo) UpdateCodeHash(ctx context.Context, conn *gorm.DB, id snowflake.ID, hash string, at time.Time) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE admins SET code_hash = ?, updated_at = ? WHERE id = ?`,
		hash, at, id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAdminNotFound
	}
	return nil
}
