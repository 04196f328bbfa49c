package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	// a second enforcer on the same store must not duplicate policies
	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	var rules int64
	require.NoError(t, conn.Table("casbin_rule").Count(&rules).Error)
	assert.Equal(t, int64(9), rules)

	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAdminPermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := Actor{ID: snowflake.ID(1), Role: "admin"}

	for _, c := range []struct{ object, action string }{
		{ObjectDashboard, ActionDashboardView},
		{ObjectUser, ActionUserView},
		{ObjectActivity, ActionActivityView},
		{ObjectAdmin, ActionAdminView},
		{ObjectAdmin, ActionAdminCreate},
		{ObjectAdmin, ActionAdminDelete},
		{ObjectAdminCode, ActionAdminCodeRotateOwn},
	} {
		assert.NoError(t, svc.Authorize(ctx, admin, c.object, c.action), c.action)
	}
	assert.ErrorIs(t, svc.Authorize(ctx, admin, ObjectAdminCode, ActionAdminCodeRotateAny), ErrForbidden)
}

func TestSuperAdminInheritsAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	super := Actor{ID: snowflake.ID(2), Role: "super-admin"}

	assert.NoError(t, svc.Authorize(ctx, super, ObjectAdminCode, ActionAdminCodeRotateAny))
	assert.NoError(t, svc.Authorize(ctx, super, ObjectAdmin, ActionAdminDelete))
}

func TestAuthorizeRejectsBadInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "admin"}, ObjectAdmin, ActionAdminView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1}, ObjectAdmin, ActionAdminView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1, Role: "admin"}, "", ActionAdminView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{ID: 1, Role: "guest"}, ObjectAdmin, ActionAdminView), ErrForbidden)
}
