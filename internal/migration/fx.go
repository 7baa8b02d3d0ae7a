package migration

import (
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/config"
	dispatchdomain "github.com/fixlane/fixlane/internal/dispatch/domain"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned SQL migrations target postgres; the embedded
			// sqlite/mysql paths fall back to schema sync.
			return conn.AutoMigrate(
				&bookingdomain.Booking{},
				&techdomain.TechnicianProfile{},
				&techdomain.TechnicianOffering{},
				&dispatchdomain.AssignmentDecision{},
				&otpdomain.Challenge{},
				&paymentdomain.Payment{},
				&paymentdomain.PaymentEvent{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
