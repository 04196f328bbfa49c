package auth

import (
	"github.com/smallbiznis/invoicekit/internal/auth/repository"
	"github.com/smallbiznis/invoicekit/internal/auth/service"
	"github.com/smallbiznis/invoicekit/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	session.Module,
)
