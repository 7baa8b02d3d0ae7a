package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/clock"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	BookingRepo bookingdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	bookingRepo bookingdomain.Repository
	auditSvc    auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		bookingRepo: p.BookingRepo,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req paymentdomain.CreateRequest) (*paymentdomain.Payment, error) {
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}

	// Retried creation returns the prior record rather than inserting a
	// duplicate.
	if existing, err := s.repo.GetByBooking(ctx, s.db, req.BookingID); err == nil {
		return existing, nil
	} else if err != paymentdomain.ErrNotFound {
		return nil, err
	}

	now := s.clock.Now()
	fee, payout := paymentdomain.Split(req.Amount)
	payment := &paymentdomain.Payment{
		ID:               s.genID.Generate(),
		BookingID:        req.BookingID,
		Amount:           req.Amount,
		PlatformFee:      fee,
		TechnicianPayout: payout,
		Status:           paymentdomain.StatusPending,
		IdempotencyKey:   key,
		AutoReleaseAt:    now.Add(paymentdomain.AutoReleaseWindow),
		GatewayOrderID:   strings.TrimSpace(req.GatewayOrderID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var raced bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.Insert(ctx, tx, payment)
		if err != nil {
			return err
		}
		if !inserted {
			// Lost the race to a concurrent create for the same booking.
			raced = true
			return nil
		}
		_, err = s.appendEvent(ctx, tx, payment, paymentdomain.EventCreated, key, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if raced {
		return s.repo.GetByBooking(ctx, s.db, req.BookingID)
	}

	s.log.Info("escrow payment created",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("booking_id", int64(payment.BookingID)),
		zap.Int64("amount", payment.Amount),
	)
	return payment, nil
}

func (s *Service) Hold(ctx context.Context, req paymentdomain.HoldRequest) (*paymentdomain.Payment, error) {
	payment, err := s.repo.Get(ctx, s.db, req.PaymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case paymentdomain.StatusHeldInEscrow, paymentdomain.StatusReleased, paymentdomain.StatusRefunded:
		// Already at or past the target: idempotent no-op.
		return payment, nil
	case paymentdomain.StatusPending:
	default:
		return nil, paymentdomain.ErrInvalidState
	}

	// Ledger append and status flip commit together; the guarded update also
	// runs on a deduplicated retry so the row converges on the event fold.
	key := eventKey(req.IdempotencyKey, "hold", payment.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.appendEvent(ctx, tx, payment, paymentdomain.EventHeldInEscrow, key, map[string]any{
			"gateway_transaction_id": req.GatewayTransactionID,
		}); err != nil {
			return err
		}

		updates := map[string]any{"held_at": s.clock.Now()}
		if txn := strings.TrimSpace(req.GatewayTransactionID); txn != "" {
			updates["gateway_transaction_id"] = txn
		}
		_, err := s.repo.UpdateStatus(ctx, tx, payment.ID, paymentdomain.StatusPending, paymentdomain.StatusHeldInEscrow, updates)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, s.db, payment.ID)
}

func (s *Service) Release(ctx context.Context, req paymentdomain.ReleaseRequest) (*paymentdomain.Payment, error) {
	payment, err := s.repo.Get(ctx, s.db, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == paymentdomain.StatusReleased {
		return payment, nil
	}
	if payment.Status != paymentdomain.StatusHeldInEscrow {
		return nil, paymentdomain.ErrInvalidState
	}

	booking, err := s.bookingRepo.Get(ctx, s.db, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != bookingdomain.StatusCompleted {
		return nil, paymentdomain.ErrBookingNotCompleted
	}

	key := eventKey(req.IdempotencyKey, "release", payment.ID)
	var updated bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.appendEvent(ctx, tx, payment, paymentdomain.EventReleased, key, map[string]any{
			"actor": string(req.Actor.Role),
		}); err != nil {
			return err
		}
		var err error
		updated, err = s.repo.UpdateStatus(ctx, tx, payment.ID, paymentdomain.StatusHeldInEscrow, paymentdomain.StatusReleased, map[string]any{
			"released_at": s.clock.Now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if updated {
		s.auditPayment(ctx, payment, req.Actor, "payment.released", map[string]any{
			"technician_payout": payment.TechnicianPayout,
			"platform_fee":      payment.PlatformFee,
		})
	}
	return s.repo.Get(ctx, s.db, payment.ID)
}

func (s *Service) Refund(ctx context.Context, req paymentdomain.RefundRequest) (*paymentdomain.Payment, error) {
	if req.Actor.Role != bookingdomain.RoleAdmin && req.Actor.Role != bookingdomain.RoleSystem {
		return nil, paymentdomain.ErrRefundNotAllowed
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, paymentdomain.ErrRefundReasonRequired
	}

	payment, err := s.repo.Get(ctx, s.db, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == paymentdomain.StatusRefunded {
		return payment, nil
	}
	if payment.Status != paymentdomain.StatusHeldInEscrow {
		return nil, paymentdomain.ErrInvalidState
	}

	key := eventKey(req.IdempotencyKey, "refund", payment.ID)
	var updated bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.appendEvent(ctx, tx, payment, paymentdomain.EventRefunded, key, map[string]any{
			"reason": reason,
			"actor":  string(req.Actor.Role),
		}); err != nil {
			return err
		}
		var err error
		updated, err = s.repo.UpdateStatus(ctx, tx, payment.ID, paymentdomain.StatusHeldInEscrow, paymentdomain.StatusRefunded, map[string]any{
			"refunded_at":   s.clock.Now(),
			"refund_reason": reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if updated {
		s.auditPayment(ctx, payment, req.Actor, "payment.refunded", map[string]any{
			"reason": reason,
		})
	}
	return s.repo.Get(ctx, s.db, payment.ID)
}

func (s *Service) MarkFailed(ctx context.Context, paymentID snowflake.ID, reason string) (*paymentdomain.Payment, error) {
	payment, err := s.repo.Get(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status == paymentdomain.StatusFailed {
		return payment, nil
	}
	if payment.Status != paymentdomain.StatusPending {
		return nil, paymentdomain.ErrInvalidState
	}

	key := eventKey("", "failed", payment.ID)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.appendEvent(ctx, tx, payment, paymentdomain.EventFailed, key, map[string]any{
			"reason": reason,
		}); err != nil {
			return err
		}
		_, err := s.repo.UpdateStatus(ctx, tx, payment.ID, paymentdomain.StatusPending, paymentdomain.StatusFailed, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, s.db, payment.ID)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return s.repo.Get(ctx, s.db, id)
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*paymentdomain.Payment, error) {
	return s.repo.GetByOrderID(ctx, s.db, orderID)
}

func (s *Service) GetByBooking(ctx context.Context, bookingID snowflake.ID) (*paymentdomain.Payment, error) {
	return s.repo.GetByBooking(ctx, s.db, bookingID)
}

func (s *Service) Events(ctx context.Context, paymentID snowflake.ID) ([]paymentdomain.PaymentEvent, error) {
	return s.repo.ListEvents(ctx, s.db, paymentID)
}

func (s *Service) AutoReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := s.repo.ListAutoReleasable(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, payment := range due {
		// Deterministic key: re-running the sweep on the same payment is a
		// no-op at the ledger.
		key := fmt.Sprintf("auto_release:%d", payment.ID)
		var updated bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.appendEvent(ctx, tx, &payment, paymentdomain.EventReleased, key, map[string]any{
				"actor":  string(bookingdomain.RoleSystem),
				"policy": "auto_release",
			}); err != nil {
				return err
			}
			var err error
			updated, err = s.repo.UpdateStatus(ctx, tx, payment.ID, paymentdomain.StatusHeldInEscrow, paymentdomain.StatusReleased, map[string]any{
				"released_at": now,
			})
			return err
		})
		if err != nil {
			return released, err
		}
		if !updated {
			continue
		}

		s.auditPayment(ctx, &payment, bookingdomain.Actor{Role: bookingdomain.RoleSystem}, "payment.auto_released", map[string]any{
			"auto_release_at": payment.AutoReleaseAt,
		})
		released++
	}
	return released, nil
}

func (s *Service) appendEvent(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment, eventType paymentdomain.EventType, key string, metadata map[string]any) (bool, error) {
	event := &paymentdomain.PaymentEvent{
		ID:             s.genID.Generate(),
		PaymentID:      payment.ID,
		Type:           eventType,
		IdempotencyKey: key,
		Amount:         payment.Amount,
		Metadata:       metadata,
		CreatedAt:      s.clock.Now(),
	}
	return s.repo.InsertEvent(ctx, db, event)
}

func (s *Service) auditPayment(ctx context.Context, payment *paymentdomain.Payment, actor bookingdomain.Actor, action string, metadata map[string]any) {
	bookingID := payment.BookingID
	actorID := ""
	if actor.ID != 0 {
		actorID = strconv.FormatInt(int64(actor.ID), 10)
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		BookingID:  &bookingID,
		ActorType:  string(actor.Role),
		ActorID:    actorID,
		Action:     action,
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		Metadata:   metadata,
	})
}

func eventKey(provided, op string, paymentID snowflake.ID) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return fmt.Sprintf("%s:%d", op, paymentID)
}
