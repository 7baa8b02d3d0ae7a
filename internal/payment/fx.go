package payment

import (
	"github.com/fixlane/fixlane/internal/payment/repository"
	paymentservice "github.com/fixlane/fixlane/internal/payment/service"
	"github.com/fixlane/fixlane/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
