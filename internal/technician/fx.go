package technician

import (
	"github.com/fixlane/fixlane/internal/technician/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("technician.readmodel",
	fx.Provide(repository.Provide),
)
