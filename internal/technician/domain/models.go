package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type VerificationState string

const (
	VerificationPending   VerificationState = "pending"
	VerificationVerified  VerificationState = "verified"
	VerificationSuspended VerificationState = "suspended"
)

type ExperienceTier string

const (
	TierJunior       ExperienceTier = "junior"
	TierIntermediate ExperienceTier = "intermediate"
	TierSenior       ExperienceTier = "senior"
	TierExpert       ExperienceTier = "expert"
)

// SkillBonus is the experience contribution to the skill sub-score.
func (t ExperienceTier) SkillBonus() float64 {
	switch t {
	case TierExpert:
		return 20
	case TierSenior:
		return 15
	case TierIntermediate:
		return 10
	case TierJunior:
		return 5
	default:
		return 0
	}
}

// TechnicianProfile is a read model maintained by the external onboarding
// workflow. The core only consumes it for dispatch signals.
type TechnicianProfile struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	DisplayName       string            `json:"display_name" gorm:"type:text;not null"`
	VerificationState VerificationState `json:"verification_state" gorm:"type:text;not null"`
	RiskScore         float64           `json:"risk_score" gorm:"not null"`
	Rating            float64           `json:"rating" gorm:"not null"`
	Lat               float64           `json:"lat" gorm:"not null"`
	Lng               float64           `json:"lng" gorm:"not null"`
	LastSeenAt        time.Time         `json:"last_seen_at" gorm:"not null;index"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
}

func (TechnicianProfile) TableName() string { return "technician_profiles" }

// TechnicianOffering is a technician's priced, capped-radius instance of a
// catalog service. Read-only to the core; the approval workflow owns it.
type TechnicianOffering struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	TechnicianID     snowflake.ID   `json:"technician_id" gorm:"not null;index"`
	ServiceID        snowflake.ID   `json:"service_id" gorm:"not null;index"`
	Price            int64          `json:"price" gorm:"not null"`
	CoverageRadiusKm float64        `json:"coverage_radius_km" gorm:"not null"`
	Experience       ExperienceTier `json:"experience" gorm:"type:text;not null"`
	Approved         bool           `json:"approved" gorm:"not null"`
	Active           bool           `json:"active" gorm:"not null"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null"`
}

func (TechnicianOffering) TableName() string { return "technician_offerings" }

type Repository interface {
	// ListEligibleOfferings returns approved, active offerings for a service
	// together with their technician profiles.
	ListEligibleOfferings(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]TechnicianOffering, map[snowflake.ID]TechnicianProfile, error)
	GetProfile(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (*TechnicianProfile, error)
}

var ErrNotFound = errors.New("technician_not_found")
