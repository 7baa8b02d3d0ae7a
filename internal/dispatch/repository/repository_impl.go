package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/dispatch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertDecision(ctx context.Context, db *gorm.DB, decision *domain.AssignmentDecision) error {
	return db.WithContext(ctx).Create(decision).Error
}

func (r *repo) CountActiveBookings(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (int, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&bookingdomain.Booking{}).
		Where("technician_id = ? AND status IN ?", technicianID, []bookingdomain.Status{
			bookingdomain.StatusConfirmed,
			bookingdomain.StatusTechnicianEnRoute,
			bookingdomain.StatusInProgress,
			bookingdomain.StatusAwaitingCustomerConfirm,
		}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *repo) CompletionStats(ctx context.Context, db *gorm.DB, technicianID snowflake.ID) (completed, cancelled, onTime int, err error) {
	var row struct {
		Completed int
		Cancelled int
		OnTime    int
	}
	err = db.WithContext(ctx).Raw(
		`SELECT
			COUNT(CASE WHEN status = ? THEN 1 END) AS completed,
			COUNT(CASE WHEN status = ? THEN 1 END) AS cancelled,
			COUNT(CASE WHEN status = ? AND actual_start_at IS NOT NULL AND actual_start_at <= scheduled_at THEN 1 END) AS on_time
		 FROM bookings
		 WHERE technician_id = ?`,
		bookingdomain.StatusCompleted,
		bookingdomain.StatusCancelled,
		bookingdomain.StatusCompleted,
		technicianID,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return row.Completed, row.Cancelled, row.OnTime, nil
}

func (r *repo) HasPreferredRelationship(ctx context.Context, db *gorm.DB, customerID, technicianID, serviceID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&bookingdomain.Booking{}).
		Where("customer_id = ? AND technician_id = ? AND service_id = ? AND status = ?",
			customerID, technicianID, serviceID, bookingdomain.StatusCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
