package otp

import (
	"github.com/fixlane/fixlane/internal/otp/repository"
	otpservice "github.com/fixlane/fixlane/internal/otp/service"
	"go.uber.org/fx"
)

var Module = fx.Module("otp.service",
	fx.Provide(repository.Provide),
	fx.Provide(otpservice.NewService),
)
