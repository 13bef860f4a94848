package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/veciapp/fiado/internal/clock"
	"github.com/veciapp/fiado/internal/config"
	"github.com/veciapp/fiado/internal/locks"
	"github.com/veciapp/fiado/internal/migration"
	"github.com/veciapp/fiado/internal/observability"
	"github.com/veciapp/fiado/internal/server"
	"github.com/veciapp/fiado/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		migration.Module,
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
