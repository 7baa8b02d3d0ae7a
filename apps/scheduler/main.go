package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/audit"
	"github.com/fixlane/fixlane/internal/booking"
	"github.com/fixlane/fixlane/internal/clock"
	"github.com/fixlane/fixlane/internal/config"
	"github.com/fixlane/fixlane/internal/logger"
	"github.com/fixlane/fixlane/internal/migration"
	"github.com/fixlane/fixlane/internal/otp"
	"github.com/fixlane/fixlane/internal/payment"
	"github.com/fixlane/fixlane/internal/scheduler"
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

		// Domain services required by the policy jobs
		audit.Module,
		booking.Module,
		otp.Module,
		payment.Module,
		scheduler.Module,

		// No server module.
		fx.Invoke(StartScheduler),
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

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
