package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/config"
	"github.com/baladiya/wastebilling/internal/migration"
	"github.com/baladiya/wastebilling/internal/observability"
	"github.com/baladiya/wastebilling/internal/scheduler"
	"github.com/baladiya/wastebilling/internal/server"
	"github.com/baladiya/wastebilling/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
