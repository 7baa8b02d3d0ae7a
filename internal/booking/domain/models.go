package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending                 Status = "pending"
	StatusPendingPayment          Status = "pending_payment"
	StatusConfirmed               Status = "confirmed"
	StatusTechnicianEnRoute       Status = "technician_en_route"
	StatusInProgress              Status = "in_progress"
	StatusAwaitingCustomerConfirm Status = "awaiting_customer_confirmation"
	StatusCompleted               Status = "completed"
	StatusDisputed                Status = "disputed"
	StatusCancelled               Status = "cancelled"
)

// Known reports whether the status is part of the lifecycle at all.
// Unrecognized targets are rejected outright.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusConfirmed,
		StatusTechnicianEnRoute, StatusInProgress, StatusAwaitingCustomerConfirm,
		StatusCompleted, StatusDisputed, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
	RoleSystem     Role = "system"
)

// Actor identifies who is requesting a mutation. Authentication mechanics are
// out of scope; the caller supplies a verified identity.
type Actor struct {
	Role Role
	ID   snowflake.ID
}

// Booking is one service request. The creating customer owns it; the assigned
// technician and admins hold mutation rights scoped by status.
type Booking struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	CustomerID   snowflake.ID  `json:"customer_id" gorm:"not null;index"`
	TechnicianID *snowflake.ID `json:"technician_id" gorm:"index"`
	OfferingID   *snowflake.ID `json:"offering_id"`
	ServiceID    snowflake.ID  `json:"service_id" gorm:"not null;index"`

	ScheduledAt time.Time `json:"scheduled_at" gorm:"not null;index"`
	Address     string    `json:"address" gorm:"type:text;not null"`
	Lat         float64   `json:"lat" gorm:"not null"`
	Lng         float64   `json:"lng" gorm:"not null"`

	Status Status `json:"status" gorm:"type:text;not null;index"`
	Amount int64  `json:"amount" gorm:"not null"`

	TechnicianNotes string `json:"technician_notes" gorm:"type:text"`

	CancelReason string        `json:"cancel_reason" gorm:"type:text"`
	CancelledBy  *snowflake.ID `json:"cancelled_by"`
	CancelRole   Role          `json:"cancel_role" gorm:"type:text"`
	CancelledAt  *time.Time    `json:"cancelled_at"`

	ActualStartAt *time.Time `json:"actual_start_at"`
	ActualEndAt   *time.Time `json:"actual_end_at"`

	// InactivityFlaggedAt guards the inactivity policy job against
	// re-flagging the same booking on every sweep.
	InactivityFlaggedAt *time.Time `json:"inactivity_flagged_at"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }
