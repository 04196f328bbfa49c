package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/smallbiznis/invoicekit/internal/migration"
	"github.com/smallbiznis/invoicekit/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the schema and make sure a super-admin exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd, "")
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Admin console maintenance",
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create the first super-admin and print its access code",
	Example: `  invoicekit admin bootstrap --email owner@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		return runSeed(cmd, email)
	},
}

func init() {
	bootstrapCmd.Flags().String("email", "", "super-admin email (defaults to SUPER_ADMIN_EMAIL)")
	adminCmd.AddCommand(bootstrapCmd)
}

type seedDeps struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
}

// runSeed migrates, then creates the super-admin when none exists. The
// generated code is printed once and cannot be recovered later.
func runSeed(cmd *cobra.Command, email string) error {
	var deps seedDeps
	app := fx.New(
		core(),
		migration.Module,
		fx.Populate(&deps),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	if strings.TrimSpace(email) == "" {
		email = deps.Cfg.SuperAdminEmail
	}
	if strings.TrimSpace(email) == "" {
		deps.Log.Info("no super-admin email configured, skipping bootstrap")
		return nil
	}

	res, err := seed.EnsureSuperAdmin(ctx, deps.DB, deps.Node, deps.Clock, email)
	if err != nil {
		return err
	}
	if !res.Created {
		fmt.Fprintln(cmd.OutOrStdout(), "a super-admin already exists")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "super-admin %s created\naccess code: %s\n", res.Admin.Email, res.Code)
	return nil
}
