package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is an append-only operational record. Every assignment, booking
// transition and payment event writes one; rows are queryable by booking id
// for dispute resolution and are never mutated.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	BookingID  *snowflake.ID     `json:"booking_id" gorm:"index"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    string            `json:"actor_id" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null;index"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   string            `json:"target_id" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	IPAddress  string            `json:"ip_address" gorm:"type:text"`
	DeviceID   string            `json:"device_id" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the write-side shape accepted by the service.
type Entry struct {
	BookingID  *snowflake.ID
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPAddress  string
	DeviceID   string
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	ListByBooking(ctx context.Context, bookingID snowflake.ID) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]AuditLog, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
