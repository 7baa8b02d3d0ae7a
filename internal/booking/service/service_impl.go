package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/clock"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     bookingdomain.Repository
	OTPSvc   otpdomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     bookingdomain.Repository
	otpSvc   otpdomain.Service
	auditSvc auditdomain.Service
}

func NewService(p Params) bookingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("booking.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		otpSvc:   p.OTPSvc,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*bookingdomain.Booking, error) {
	return s.repo.Get(ctx, s.db, id)
}

func (s *Service) Transition(ctx context.Context, req bookingdomain.TransitionRequest) (*bookingdomain.Booking, error) {
	if !req.Target.Known() {
		return nil, bookingdomain.ErrUnknownStatus
	}

	booking, err := s.repo.Get(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}

	// Idempotent re-delivery: already at the target is success, not error.
	if booking.Status == req.Target {
		return booking, nil
	}

	rule, ok := bookingdomain.RuleFor(booking.Status, req.Target)
	if !ok {
		return nil, bookingdomain.ErrInvalidTransition
	}
	if !rule.Allows(req.Actor.Role) {
		return nil, bookingdomain.ErrRoleNotAllowed
	}
	if err := s.checkOwnership(booking, req.Actor); err != nil {
		return nil, err
	}

	// Every status beyond pending carries an assigned technician, except the
	// cancellation branch which may fire before dispatch succeeded.
	if booking.Status == bookingdomain.StatusPending &&
		req.Target != bookingdomain.StatusCancelled &&
		booking.TechnicianID == nil {
		return nil, bookingdomain.ErrTechnicianRequired
	}

	updates, err := s.checkEvidence(ctx, booking, rule, req)
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.ApplyTransition(ctx, s.db, booking.ID, booking.Status, req.Target, updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent writer moved the booking first. Re-read: landing on
		// the same target is a no-op success, anything else is a conflict.
		current, err := s.repo.Get(ctx, s.db, req.BookingID)
		if err != nil {
			return nil, err
		}
		if current.Status == req.Target {
			return current, nil
		}
		return nil, bookingdomain.ErrConflict
	}

	prev := booking.Status
	updated, err := s.repo.Get(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, prev, req)
	s.log.Info("booking transition applied",
		zap.Int64("booking_id", int64(updated.ID)),
		zap.String("from", string(prev)),
		zap.String("to", string(req.Target)),
		zap.String("actor_role", string(req.Actor.Role)),
	)
	return updated, nil
}

func (s *Service) checkOwnership(booking *bookingdomain.Booking, actor bookingdomain.Actor) error {
	switch actor.Role {
	case bookingdomain.RoleCustomer:
		if booking.CustomerID != actor.ID {
			return bookingdomain.ErrNotBookingCustomer
		}
	case bookingdomain.RoleTechnician:
		if booking.TechnicianID == nil || *booking.TechnicianID != actor.ID {
			return bookingdomain.ErrNotBookingTechnician
		}
	}
	return nil
}

// checkEvidence validates the rule's evidence requirement and returns the
// field stamps the transition applies.
func (s *Service) checkEvidence(ctx context.Context, booking *bookingdomain.Booking, rule bookingdomain.Rule, req bookingdomain.TransitionRequest) (map[string]any, error) {
	now := s.clock.Now()
	updates := map[string]any{}

	switch rule.Evidence {
	case bookingdomain.EvidenceOTPStart:
		if err := s.otpSvc.Verify(ctx, booking.ID, req.Actor.ID, otpdomain.PurposeJobStart, req.OTPCode); err != nil {
			return nil, err
		}
	case bookingdomain.EvidenceOTPCompletion:
		if err := s.otpSvc.Verify(ctx, booking.ID, req.Actor.ID, otpdomain.PurposeJobCompletion, req.OTPCode); err != nil {
			return nil, err
		}
	case bookingdomain.EvidenceCancelReason:
		if strings.TrimSpace(req.CancelReason) == "" {
			return nil, bookingdomain.ErrCancelReasonRequired
		}
	}

	switch req.Target {
	case bookingdomain.StatusInProgress:
		updates["actual_start_at"] = now
	case bookingdomain.StatusAwaitingCustomerConfirm:
		updates["actual_end_at"] = now
	case bookingdomain.StatusCancelled:
		updates["cancel_reason"] = strings.TrimSpace(req.CancelReason)
		updates["cancel_role"] = req.Actor.Role
		updates["cancelled_at"] = now
		if req.Actor.ID != 0 {
			updates["cancelled_by"] = req.Actor.ID
		}
	}

	if notes := strings.TrimSpace(req.Notes); notes != "" && req.Actor.Role == bookingdomain.RoleTechnician {
		updates["technician_notes"] = notes
	}
	return updates, nil
}

func (s *Service) audit(ctx context.Context, booking *bookingdomain.Booking, prev bookingdomain.Status, req bookingdomain.TransitionRequest) {
	metadata := map[string]any{
		"previous_status": string(prev),
		"next_status":     string(req.Target),
	}
	if req.Notes != "" {
		metadata["notes"] = req.Notes
	}
	if req.CancelReason != "" {
		metadata["cancel_reason"] = req.CancelReason
	}

	bookingID := booking.ID
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		BookingID:  &bookingID,
		ActorType:  string(req.Actor.Role),
		ActorID:    actorID(req.Actor),
		Action:     "booking.transition",
		TargetType: "booking",
		TargetID:   booking.ID.String(),
		Metadata:   metadata,
		IPAddress:  req.IPAddress,
		DeviceID:   req.DeviceID,
	})
}

func actorID(actor bookingdomain.Actor) string {
	if actor.ID == 0 {
		return string(actor.Role)
	}
	return strconv.FormatInt(int64(actor.ID), 10)
}
