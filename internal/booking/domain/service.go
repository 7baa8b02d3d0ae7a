package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// TransitionRequest carries one requested status change plus its evidence.
type TransitionRequest struct {
	BookingID snowflake.ID
	Target    Status
	Actor     Actor

	OTPCode      string
	Notes        string
	CancelReason string

	DeviceID  string
	IPAddress string
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Booking, error)
	// Transition validates the request against the transition table, checks
	// evidence, applies field stamps and persists booking + audit entry.
	Transition(ctx context.Context, req TransitionRequest) (*Booking, error)
}

var (
	ErrNotFound             = errors.New("booking_not_found")
	ErrUnknownStatus        = errors.New("unknown_target_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrRoleNotAllowed       = errors.New("role_not_allowed")
	ErrNotBookingCustomer   = errors.New("not_booking_customer")
	ErrNotBookingTechnician = errors.New("not_booking_technician")
	ErrTechnicianRequired   = errors.New("technician_required")
	ErrCancelReasonRequired = errors.New("cancel_reason_required")
	ErrConflict             = errors.New("booking_conflict")
)
