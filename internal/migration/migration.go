package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	authdomain "github.com/smallbiznis/invoicekit/internal/auth/domain"
	customerdomain "github.com/smallbiznis/invoicekit/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/invoicekit/internal/invoice/domain"
	productdomain "github.com/smallbiznis/invoicekit/internal/product/domain"
	settingsdomain "github.com/smallbiznis/invoicekit/internal/settings/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the application owns, in dependency order.
func Models() []any {
	return []any{
		&authdomain.User{},
		&admindomain.Admin{},
		&authdomain.Session{},
		&auditdomain.Activity{},
		&customerdomain.Customer{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.Payment{},
		&settingsdomain.Setting{},
	}
}

// Apply brings the schema up to date. PostgreSQL runs the versioned SQL
// files; SQLite and MySQL use gorm's AutoMigrate.
func Apply(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if conn.Dialector.Name() == db.TypePostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}
