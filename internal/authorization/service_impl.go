package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin      = "role:admin"
	RoleSuperAdmin = "role:super-admin"
)

const (
	ObjectDashboard = "dashboard"
	ObjectUser      = "user"
	ObjectAdmin     = "admin"
	ObjectActivity  = "activity"
	ObjectAdminCode = "admin_code"
)

const (
	ActionDashboardView = "dashboard.view"
	ActionUserView      = "user.view"
	ActionActivityView  = "activity.view"

	ActionAdminView   = "admin.view"
	ActionAdminCreate = "admin.create"
	ActionAdminDelete = "admin.delete"

	ActionAdminCodeRotateOwn = "admin_code.rotate_own"
	ActionAdminCodeRotateAny = "admin_code.rotate_any"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from casbin_rule and seeds the built-in ones.
// Seeding is idempotent.
func NewEnforcer(conn *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(conn)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	if actor.ID == 0 {
		return ErrInvalidActor
	}
	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce("role:"+role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("admin_id", actor.ID.String()),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleAdmin, ObjectDashboard, ActionDashboardView},
		{RoleAdmin, ObjectUser, ActionUserView},
		{RoleAdmin, ObjectActivity, ActionActivityView},
		{RoleAdmin, ObjectAdmin, ActionAdminView},
		{RoleAdmin, ObjectAdmin, ActionAdminCreate},
		{RoleAdmin, ObjectAdmin, ActionAdminDelete},
		{RoleAdmin, ObjectAdminCode, ActionAdminCodeRotateOwn},

		{RoleSuperAdmin, ObjectAdminCode, ActionAdminCodeRotateAny},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	if _, err := enforcer.AddGroupingPolicy(RoleSuperAdmin, RoleAdmin); err != nil {
		return err
	}
	return nil
}
