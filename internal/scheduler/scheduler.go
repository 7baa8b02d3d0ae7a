package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/clock"
	obsmetrics "github.com/fixlane/fixlane/internal/observability/metrics"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	BookingRepo bookingdomain.Repository
	BookingSvc  bookingdomain.Service
	PaymentSvc  paymentdomain.Service
	AuditSvc    auditdomain.Service
	Config      Config `optional:"true"`
}

// Scheduler runs the time-driven policy jobs. Every job acts only on rows
// still matching its predicate, so overlapping runs and races with
// user-triggered transitions degrade to no-ops rather than double effects.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	bookingRepo bookingdomain.Repository
	bookingSvc  bookingdomain.Service
	paymentSvc  paymentdomain.Service
	auditSvc    auditdomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		bookingRepo: p.BookingRepo,
		bookingSvc:  p.BookingSvc,
		paymentSvc:  p.PaymentSvc,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	obsmetrics.IncJobRun(name)
	err := fn(ctx)
	obsmetrics.ObserveJobDuration(name, time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	obsmetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, "auto_release", s.AutoReleaseJob))
	err = errors.Join(err, s.runJob(parent, "sla_refund", s.SLARefundJob))
	err = errors.Join(err, s.runJob(parent, "inactivity_flag", s.InactivityFlagJob))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
