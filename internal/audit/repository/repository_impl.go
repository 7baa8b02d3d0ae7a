package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]domain.AuditLog, error) {
	var items []domain.AuditLog
	err := db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
