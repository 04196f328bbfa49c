package seed

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	adminrepo "github.com/smallbiznis/invoicekit/internal/admin/repository"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	auditrepo "github.com/smallbiznis/invoicekit/internal/audit/repository"
	"github.com/smallbiznis/invoicekit/internal/auth/password"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result reports what EnsureSuperAdmin did. Code is set only when an
// account was created and is never stored in clear.
type Result struct {
	Created bool
	Admin   admindomain.Admin
	Code    string
}

// EnsureSuperAdmin creates a super-admin with a generated access code when
// none exists. Calling it again is a no-op.
func EnsureSuperAdmin(ctx context.Context, conn *gorm.DB, node *snowflake.Node, clk clock.Clock, email string) (Result, error) {
	if conn == nil {
		return Result{}, errors.New("seed database handle is required")
	}
	if node == nil {
		return Result{}, errors.New("seed id generator is required")
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Result{}, admindomain.ErrInvalidEmail
	}

	admins := adminrepo.Provide()
	activities := auditrepo.Provide()

	var result Result
	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := admins.CountByRole(ctx, tx, admindomain.RoleSuperAdmin)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		_, err = admins.FindByEmail(ctx, tx, addr.Address)
		switch {
		case err == nil:
			return admindomain.ErrAdminExists
		case !errors.Is(err, admindomain.ErrAdminNotFound):
			return err
		}

		code, err := password.GenerateCode(admindomain.CodeLength)
		if err != nil {
			return err
		}
		hashed, err := password.Hash(code)
		if err != nil {
			return err
		}

		now := clk.Now().UTC()
		admin := admindomain.Admin{
			ID:        node.Generate(),
			Email:     addr.Address,
			CodeHash:  hashed,
			Role:      admindomain.RoleSuperAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := admins.Insert(ctx, tx, &admin); err != nil {
			return err
		}

		if err := activities.Insert(ctx, tx, &auditdomain.Activity{
			ID:        node.Generate(),
			AdminID:   admin.ID,
			Action:    auditdomain.ActionAddAdmin,
			Details:   "bootstrap super-admin " + admin.Email,
			Metadata:  datatypes.JSONMap{"role": admin.Role, "source": "bootstrap"},
			CreatedAt: now,
		}); err != nil {
			return err
		}

		result = Result{Created: true, Admin: admin.Redacted(), Code: code}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}
