package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/audit"
	"github.com/fixlane/fixlane/internal/booking"
	"github.com/fixlane/fixlane/internal/clock"
	"github.com/fixlane/fixlane/internal/config"
	"github.com/fixlane/fixlane/internal/dispatch"
	"github.com/fixlane/fixlane/internal/logger"
	"github.com/fixlane/fixlane/internal/migration"
	"github.com/fixlane/fixlane/internal/otp"
	"github.com/fixlane/fixlane/internal/payment"
	"github.com/fixlane/fixlane/internal/scheduler"
	"github.com/fixlane/fixlane/internal/server"
	"github.com/fixlane/fixlane/internal/technician"
	"github.com/fixlane/fixlane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services
		audit.Module,
		technician.Module,
		booking.Module,
		otp.Module,
		dispatch.Module,
		payment.Module,

		// Wired for the manual job-trigger endpoints; the ticker loop runs in
		// the scheduler binary.
		scheduler.Module,

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
