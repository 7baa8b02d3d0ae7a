package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusHeldInEscrow Status = "held_in_escrow"
	StatusReleased     Status = "released"
	StatusRefunded     Status = "refunded"
	StatusFailed       Status = "failed"
)

// Terminal reports whether money movement for the payment is settled.
func (s Status) Terminal() bool {
	return s == StatusReleased || s == StatusRefunded || s == StatusFailed
}

type EventType string

const (
	EventCreated      EventType = "created"
	EventHeldInEscrow EventType = "held_in_escrow"
	EventReleased     EventType = "released"
	EventRefunded     EventType = "refunded"
	EventDisputed     EventType = "disputed"
	EventFailed       EventType = "failed"
)

const (
	// PlatformFeePercent is the fixed split applied on creation.
	PlatformFeePercent = 15
	// AutoReleaseWindow is the grace period after which escrowed funds are
	// released unless the booking is disputed.
	AutoReleaseWindow = 7 * 24 * time.Hour
)

// Split derives the platform fee and technician payout from the booking
// amount.
func Split(amount int64) (fee, payout int64) {
	fee = amount * PlatformFeePercent / 100
	return fee, amount - fee
}

// Payment is the escrow record, one per booking.
type Payment struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID snowflake.ID `json:"booking_id" gorm:"not null;uniqueIndex"`

	Amount           int64 `json:"amount" gorm:"not null"`
	PlatformFee      int64 `json:"platform_fee" gorm:"not null"`
	TechnicianPayout int64 `json:"technician_payout" gorm:"not null"`

	Status         Status `json:"status" gorm:"type:text;not null;index"`
	IdempotencyKey string `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`

	AutoReleaseAt time.Time `json:"auto_release_at" gorm:"not null;index"`

	GatewayOrderID       string `json:"gateway_order_id" gorm:"type:text;index"`
	GatewayTransactionID string `json:"gateway_transaction_id" gorm:"type:text"`

	RefundReason string `json:"refund_reason" gorm:"type:text"`

	HeldAt     *time.Time `json:"held_at"`
	ReleasedAt *time.Time `json:"released_at"`
	RefundedAt *time.Time `json:"refunded_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// PaymentEvent is an immutable ledger entry. Events are never updated or
// deleted; the payment's status is always the fold of its events in creation
// order.
type PaymentEvent struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	PaymentID      snowflake.ID      `json:"payment_id" gorm:"not null;index"`
	Type           EventType         `json:"type" gorm:"type:text;not null"`
	IdempotencyKey string            `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	Amount         int64             `json:"amount" gorm:"not null"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

// FoldStatus replays events in creation order and returns the resulting
// status. A disputed event freezes movement but does not change the enum.
func FoldStatus(events []PaymentEvent) Status {
	var status Status
	for _, event := range events {
		switch event.Type {
		case EventCreated:
			status = StatusPending
		case EventHeldInEscrow:
			status = StatusHeldInEscrow
		case EventReleased:
			status = StatusReleased
		case EventRefunded:
			status = StatusRefunded
		case EventFailed:
			status = StatusFailed
		case EventDisputed:
			// status unchanged
		}
	}
	return status
}

type CreateRequest struct {
	BookingID      snowflake.ID
	Amount         int64
	IdempotencyKey string
	GatewayOrderID string
}

type HoldRequest struct {
	PaymentID            snowflake.ID
	IdempotencyKey       string
	GatewayTransactionID string
}

type ReleaseRequest struct {
	PaymentID      snowflake.ID
	IdempotencyKey string
	Actor          bookingdomain.Actor
}

type RefundRequest struct {
	PaymentID      snowflake.ID
	IdempotencyKey string
	Reason         string
	Actor          bookingdomain.Actor
}

type Service interface {
	// Create is idempotent per (booking, idempotency key): a retried call
	// returns the existing record instead of inserting a duplicate.
	Create(ctx context.Context, req CreateRequest) (*Payment, error)
	Hold(ctx context.Context, req HoldRequest) (*Payment, error)
	// Release moves escrowed funds to the technician; permitted only when
	// the underlying booking is completed.
	Release(ctx context.Context, req ReleaseRequest) (*Payment, error)
	// Refund is admin-only (policy jobs act as system) and requires a reason.
	Refund(ctx context.Context, req RefundRequest) (*Payment, error)
	MarkFailed(ctx context.Context, paymentID snowflake.ID, reason string) (*Payment, error)

	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetByBooking(ctx context.Context, bookingID snowflake.ID) (*Payment, error)
	Events(ctx context.Context, paymentID snowflake.ID) ([]PaymentEvent, error)

	// AutoReleaseDue releases every held payment past its deadline whose
	// booking is not disputed. Safe to re-run: deterministic event keys make
	// the second pass a no-op.
	AutoReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	GetByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Payment, error)
	GetByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*Payment, error)

	// InsertEvent appends to the ledger; returns false when the idempotency
	// key was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *PaymentEvent) (bool, error)
	ListEvents(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]PaymentEvent, error)

	// UpdateStatus is the guarded single-statement transition.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updates map[string]any) (bool, error)

	// ListAutoReleasable returns held payments past their deadline whose
	// booking is not disputed.
	ListAutoReleasable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Payment, error)
}

var (
	ErrNotFound             = errors.New("payment_not_found")
	ErrInvalidAmount        = errors.New("payment_invalid_amount")
	ErrInvalidState         = errors.New("payment_invalid_state")
	ErrBookingNotCompleted  = errors.New("booking_not_completed")
	ErrRefundReasonRequired = errors.New("refund_reason_required")
	ErrRefundNotAllowed     = errors.New("refund_not_allowed")

	// ErrPaymentNotVisible distinguishes the webhook race (row not yet
	// committed, retry-worthy) from a terminal not-found.
	ErrPaymentNotVisible = errors.New("payment_not_yet_visible")
)
