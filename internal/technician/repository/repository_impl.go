package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/technician/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListEligibleOfferings(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) ([]domain.TechnicianOffering, map[snowflake.ID]domain.TechnicianProfile, error) {
	var offerings []domain.TechnicianOffering
	err := db.WithContext(ctx).
		Where("service_id = ? AND approved = ? AND active = ?", serviceID, true, true).
		Find(&offerings).Error
	if err != nil {
		return nil, nil, err
	}
	if len(offerings) == 0 {
		return offerings, map[snowflake.ID]domain.TechnicianProfile{}, nil
	}

	ids := make([]snowflake.ID, 0, len(offerings))
	for _, offering := range offerings {
		ids = append(ids, offering.TechnicianID)
	}

	var profiles []domain.TechnicianProfile
	err = db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&profiles).Error
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[snowflake.ID]domain.TechnicianProfile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}
	return offerings, byID, nil
}

func (r *repo) GetProfile(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (*domain.TechnicianProfile, error) {
	var profile domain.TechnicianProfile
	err := db.WithContext(ctx).First(&profile, "id = ?", technicianID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
