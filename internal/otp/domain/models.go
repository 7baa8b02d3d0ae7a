package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Purpose string

const (
	PurposeJobStart      Purpose = "job_start"
	PurposeJobCompletion Purpose = "job_completion"
)

func (p Purpose) Valid() bool {
	return p == PurposeJobStart || p == PurposeJobCompletion
}

const (
	CodeLength     = 6
	TTL            = 15 * time.Minute
	MaxAttempts    = 3
	ResendCooldown = 30 * time.Second
)

// Challenge is a one-time code for a (booking, user, purpose) triple. A newer
// challenge supersedes older ones: lookups always take the latest by creation
// time, so there is no mutable "current code" slot to race on.
type Challenge struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID snowflake.ID `json:"booking_id" gorm:"not null;index:idx_otp_scope,priority:1"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;index:idx_otp_scope,priority:2"`
	Purpose   Purpose      `json:"purpose" gorm:"type:text;not null;index:idx_otp_scope,priority:3"`
	Code      string       `json:"-" gorm:"type:text;not null"`
	ExpiresAt time.Time    `json:"expires_at" gorm:"not null"`
	Attempts  int          `json:"attempts" gorm:"not null"`
	Verified  bool         `json:"verified" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Challenge) TableName() string { return "otp_challenges" }

type Service interface {
	// Issue creates a fresh challenge, enforcing the resend cooldown against
	// the latest existing challenge for the same scope.
	Issue(ctx context.Context, bookingID, userID snowflake.ID, purpose Purpose) (*Challenge, error)
	// Verify consumes the current challenge exactly once. Mismatches count
	// against the attempt budget; an exhausted challenge rejects even the
	// correct code until a new one is issued.
	Verify(ctx context.Context, bookingID, userID snowflake.ID, purpose Purpose, code string) error
}

type Repository interface {
	Latest(ctx context.Context, db *gorm.DB, bookingID, userID snowflake.ID, purpose Purpose) (*Challenge, error)
	Insert(ctx context.Context, db *gorm.DB, challenge *Challenge) error
	IncrementAttempts(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// Consume marks the challenge verified; guarded so it succeeds at most
	// once and never past the attempt budget.
	Consume(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

var (
	ErrInvalidPurpose    = errors.New("otp_invalid_purpose")
	ErrNoActiveChallenge = errors.New("otp_no_active_challenge")
	ErrChallengeExpired  = errors.New("otp_challenge_expired")
	ErrCodeMismatch      = errors.New("otp_code_mismatch")
	ErrAttemptsExceeded  = errors.New("otp_attempts_exceeded")
	ErrResendCooldown    = errors.New("otp_resend_cooldown")
)

// CooldownError is returned by Issue inside the resend window; it carries the
// user-facing retry hint.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend cooldown: retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrResendCooldown }

// MismatchError is returned on a wrong code; it carries the remaining-attempt
// hint.
type MismatchError struct {
	AttemptsRemaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("otp code mismatch: %d attempts remaining", e.AttemptsRemaining)
}

func (e *MismatchError) Is(target error) bool { return target == ErrCodeMismatch }
