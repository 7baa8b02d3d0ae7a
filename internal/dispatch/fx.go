package dispatch

import (
	"github.com/fixlane/fixlane/internal/dispatch/repository"
	dispatchservice "github.com/fixlane/fixlane/internal/dispatch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatch.service",
	fx.Provide(repository.Provide),
	fx.Provide(dispatchservice.NewService),
)
