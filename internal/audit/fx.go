package audit

import (
	"github.com/fixlane/fixlane/internal/audit/repository"
	auditservice "github.com/fixlane/fixlane/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(auditservice.NewService),
)
