package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/settings/domain"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Setting{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
	}), conn
}

func TestSaveUpserts(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	_, err := svc.Save(ctx, map[string]any{"company_name": "ACME", "due_days": 14})
	require.NoError(t, err)

	out, err := svc.Save(ctx, map[string]any{"company_name": "ACME AG", "iban": "DE02"})
	require.NoError(t, err)
	assert.Equal(t, "ACME AG", out["company_name"])
	assert.Equal(t, float64(14), out["due_days"])
	assert.Equal(t, "DE02", out["iban"])

	var rows int64
	require.NoError(t, conn.Model(&domain.Setting{}).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)
}

func TestSettingsAreScopedToUser(t *testing.T) {
	svc, _ := newTestService(t)
	alice := tenantctx.WithUserID(context.Background(), snowflake.ID(1))
	bob := tenantctx.WithUserID(context.Background(), snowflake.ID(2))

	_, err := svc.Save(alice, map[string]any{"theme": "dark"})
	require.NoError(t, err)

	got, err := svc.Get(bob)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestSaveRejectsBadKeyAtomically(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	_, err := svc.Save(ctx, map[string]any{"ok": 1, "bad key!": 2})
	assert.ErrorIs(t, err, domain.ErrInvalidKey)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScalarValuesReadBack(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := tenantctx.WithUserID(context.Background(), snowflake.ID(1))

	_, err := svc.Save(ctx, map[string]any{
		"due_days":   14,
		"tax_rate":   19.5,
		"show_logo":  true,
		"letterhead": map[string]any{"lines": 3},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(14), got["due_days"])
	assert.Equal(t, 19.5, got["tax_rate"])
	assert.Equal(t, true, got["show_logo"])
	assert.Equal(t, map[string]any{"lines": float64(3)}, got["letterhead"])

	_, err = svc.Save(ctx, map[string]any{"due_days": 30})
	require.NoError(t, err)
}
