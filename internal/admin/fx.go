package admin

import (
	"github.com/smallbiznis/invoicekit/internal/admin/domain"
	"github.com/smallbiznis/invoicekit/internal/admin/repository"
	"github.com/smallbiznis/invoicekit/internal/admin/service"
	"github.com/smallbiznis/invoicekit/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("admin.service",
	fx.Provide(PolicyFromConfig),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

func PolicyFromConfig(cfg config.Config) domain.LockoutPolicy {
	return domain.LockoutPolicy{
		Threshold: cfg.AdminLockoutThreshold,
		Duration:  cfg.AdminLockoutDuration,
	}.Normalize()
}
