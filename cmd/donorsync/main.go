package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/donorsync/donorsync/internal/clock"
	"github.com/donorsync/donorsync/internal/config"
	"github.com/donorsync/donorsync/internal/crm"
	"github.com/donorsync/donorsync/internal/importer"
	"github.com/donorsync/donorsync/internal/migration"
	"github.com/donorsync/donorsync/internal/observability"
	"github.com/donorsync/donorsync/internal/organization"
	"github.com/donorsync/donorsync/internal/queue"
	"github.com/donorsync/donorsync/internal/reconcile"
	"github.com/donorsync/donorsync/internal/server"
	"github.com/donorsync/donorsync/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		organization.Module,
		crm.Module,
		reconcile.Module,
		queue.Module,
		importer.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
