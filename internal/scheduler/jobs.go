package scheduler

import (
	"context"
	"errors"
	"fmt"

	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	obsmetrics "github.com/fixlane/fixlane/internal/observability/metrics"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"go.uber.org/zap"
)

// SLARefundReason is stamped on both the refund and the cancellation.
const SLARefundReason = "technician failed to start within the SLA window"

// AutoReleaseJob releases escrowed funds past their deadline unless the
// booking is disputed.
func (s *Scheduler) AutoReleaseJob(ctx context.Context) error {
	released, err := s.paymentSvc.AutoReleaseDue(ctx, s.clock.Now(), s.cfg.BatchSize)
	if released > 0 {
		obsmetrics.IncJobAction("auto_release", "released")
		s.log.Info("auto-released escrowed payments", zap.Int("count", released))
	}
	return err
}

// SLARefundJob refunds and cancels bookings whose technician never started
// inside the grace period. Acting only on rows still matching the predicate
// makes a second run a no-op.
func (s *Scheduler) SLARefundJob(ctx context.Context) error {
	now := s.clock.Now()
	breached, err := s.bookingRepo.ListSLABreached(ctx, s.db, now.Add(-s.cfg.SLAGrace), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var errs error
	for _, booking := range breached {
		if err := s.compensateSLABreach(ctx, booking); err != nil {
			errs = errors.Join(errs, fmt.Errorf("booking %d: %w", booking.ID, err))
		}
	}
	return errs
}

func (s *Scheduler) compensateSLABreach(ctx context.Context, booking bookingdomain.Booking) error {
	payment, err := s.paymentSvc.GetByBooking(ctx, booking.ID)
	switch {
	case err == nil && payment.Status == paymentdomain.StatusHeldInEscrow:
		_, err = s.paymentSvc.Refund(ctx, paymentdomain.RefundRequest{
			PaymentID:      payment.ID,
			IdempotencyKey: fmt.Sprintf("sla_refund:%d", booking.ID),
			Reason:         SLARefundReason,
			Actor:          bookingdomain.Actor{Role: bookingdomain.RoleSystem},
		})
		if err != nil && !errors.Is(err, paymentdomain.ErrInvalidState) {
			return err
		}
		obsmetrics.IncJobAction("sla_refund", "refunded")
	case err != nil && !errors.Is(err, paymentdomain.ErrNotFound):
		return err
	}

	_, err = s.bookingSvc.Transition(ctx, bookingdomain.TransitionRequest{
		BookingID:    booking.ID,
		Target:       bookingdomain.StatusCancelled,
		Actor:        bookingdomain.Actor{Role: bookingdomain.RoleSystem},
		CancelReason: SLARefundReason,
	})
	if err != nil && !errors.Is(err, bookingdomain.ErrConflict) {
		return err
	}
	obsmetrics.IncJobAction("sla_refund", "cancelled")

	s.log.Info("sla breach compensated",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.Time("scheduled_at", booking.ScheduledAt),
	)
	return nil
}

// InactivityFlagJob raises a flag for bookings due soon whose technician has
// gone quiet. It never reassigns; that stays an explicit dispatch action.
func (s *Scheduler) InactivityFlagJob(ctx context.Context) error {
	now := s.clock.Now()
	candidates, err := s.bookingRepo.ListInactivityCandidates(ctx, s.db,
		now,
		now.Add(s.cfg.InactivityLookahead),
		now.Add(-s.cfg.InactivityStaleness),
		s.cfg.BatchSize,
	)
	if err != nil {
		return err
	}

	var errs error
	for _, booking := range candidates {
		flagged, err := s.bookingRepo.MarkInactivityFlagged(ctx, s.db, booking.ID, now)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		if !flagged {
			continue
		}

		bookingID := booking.ID
		var technicianID string
		if booking.TechnicianID != nil {
			technicianID = booking.TechnicianID.String()
		}
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			BookingID:  &bookingID,
			ActorType:  string(bookingdomain.RoleSystem),
			ActorID:    "scheduler",
			Action:     "technician.inactivity_flagged",
			TargetType: "booking",
			TargetID:   booking.ID.String(),
			Metadata: map[string]any{
				"technician_id": technicianID,
				"scheduled_at":  booking.ScheduledAt,
			},
		})
		obsmetrics.IncJobAction("inactivity_flag", "flagged")
		s.log.Warn("technician inactive before due booking",
			zap.Int64("booking_id", int64(booking.ID)),
			zap.String("technician_id", technicianID),
		)
	}
	return errs
}
