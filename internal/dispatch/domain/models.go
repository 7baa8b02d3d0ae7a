package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssignmentType string

const (
	AssignmentAuto             AssignmentType = "auto"
	AssignmentManualAdmin      AssignmentType = "manual_admin"
	AssignmentCustomerSelected AssignmentType = "customer_selected"
)

// Ranking constants. Weights sum to 1.0; the composite stays on a 0-100
// scale, with the preferred-relationship bonus applied inside the cap.
const (
	RiskThreshold    = 70.0
	WorkloadCapacity = 5
	PreferredBonus   = 20.0

	WeightProximity  = 0.25
	WeightSkill      = 0.20
	WeightRisk       = 0.15
	WeightCompletion = 0.15
	WeightSLA        = 0.15
	WeightWorkload   = 0.10
)

// Signals is the ephemeral per-candidate bundle computed fresh on every
// dispatch call. It is never cached across bookings.
type Signals struct {
	DistanceKm     float64 `json:"distance_km"`
	ActiveBookings int     `json:"active_bookings"`
	CompletedJobs  int     `json:"completed_jobs"`
	CancelledJobs  int     `json:"cancelled_jobs"`
	OnTimeJobs     int     `json:"on_time_jobs"`
	Preferred      bool    `json:"preferred"`
}

type Candidate struct {
	Offering techdomain.TechnicianOffering
	Profile  techdomain.TechnicianProfile
	Signals  Signals
}

// Factors holds the normalized sub-scores feeding the weighted composite.
type Factors struct {
	Proximity  float64 `json:"proximity"`
	Skill      float64 `json:"skill"`
	Risk       float64 `json:"risk"`
	Completion float64 `json:"completion"`
	SLA        float64 `json:"sla"`
	Workload   float64 `json:"workload"`
	Preferred  bool    `json:"preferred"`
	Composite  float64 `json:"composite"`
}

type ScoredCandidate struct {
	Candidate Candidate
	Factors   Factors
	Score     float64
}

// AssignmentDecision is the append-only audit record of one assignment event.
type AssignmentDecision struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	BookingID      snowflake.ID   `json:"booking_id" gorm:"not null;index"`
	TechnicianID   snowflake.ID   `json:"technician_id" gorm:"not null"`
	OfferingID     snowflake.ID   `json:"offering_id" gorm:"not null"`
	AssignmentType AssignmentType `json:"assignment_type" gorm:"type:text;not null"`
	Score          float64        `json:"score" gorm:"not null"`
	Factors        datatypes.JSON `json:"factors" gorm:"type:jsonb"`
	Reason         string         `json:"reason" gorm:"type:text;not null"`
	ActorType      string         `json:"actor_type" gorm:"type:text;not null"`
	ActorID        string         `json:"actor_id" gorm:"type:text"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
}

func (AssignmentDecision) TableName() string { return "assignment_decisions" }

type DispatchRequest struct {
	BookingID snowflake.ID
	Actor     bookingdomain.Actor
	Type      AssignmentType
	// TechnicianID pins the choice for customer_selected / manual_admin
	// assignments; the technician must still pass eligibility.
	TechnicianID *snowflake.ID
}

type DispatchResult struct {
	Booking  *bookingdomain.Booking
	Decision *AssignmentDecision
	Ranked   []ScoredCandidate
}

type Service interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

type Repository interface {
	InsertDecision(ctx context.Context, db *gorm.DB, decision *AssignmentDecision) error

	// Signal queries, computed fresh per dispatch call.
	CountActiveBookings(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (int, error)
	CompletionStats(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (completed, cancelled, onTime int, err error)
	HasPreferredRelationship(ctx context.Context, db *gorm.DB, customerID, technicianID, serviceID snowflake.ID) (bool, error)
}

var (
	// ErrNoEligibleTechnician is a reportable empty result, not an internal
	// fault; callers surface it and do not retry.
	ErrNoEligibleTechnician = errors.New("no_eligible_technician")
	ErrNotDispatchable      = errors.New("booking_not_dispatchable")
	ErrTechnicianNotRanked  = errors.New("technician_not_in_ranking")
)
