package booking

import (
	"github.com/fixlane/fixlane/internal/booking/repository"
	bookingservice "github.com/fixlane/fixlane/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(bookingservice.NewService),
)
