package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicekit/internal/clock"
	"github.com/smallbiznis/invoicekit/internal/config"
	"github.com/smallbiznis/invoicekit/internal/observability"
	"github.com/smallbiznis/invoicekit/pkg/db"
	"go.uber.org/fx"
)

// core is the infrastructure every command needs.
func core() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
