package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).First(&booking, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Create(booking).Error
}

func (r *repo) ApplyTransition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AssignTechnician(ctx context.Context, db *gorm.DB, id, technicianID, offeringID snowflake.ID, price int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND status = ? AND technician_id IS NULL", id, domain.StatusPending).
		Updates(map[string]any{
			"technician_id": technicianID,
			"offering_id":   offeringID,
			"amount":        price,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListSLABreached(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).
		Where("status IN ? AND scheduled_at < ?", []domain.Status{domain.StatusConfirmed, domain.StatusTechnicianEnRoute}, cutoff).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListInactivityCandidates(ctx context.Context, db *gorm.DB, windowStart, windowEnd, staleBefore time.Time, limit int) ([]domain.Booking, error) {
	var items []domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT b.*
		 FROM bookings b
		 JOIN technician_profiles t ON t.id = b.technician_id
		 WHERE b.status IN (?, ?)
		   AND b.scheduled_at >= ?
		   AND b.scheduled_at <= ?
		   AND b.inactivity_flagged_at IS NULL
		   AND t.last_seen_at < ?
		 ORDER BY b.scheduled_at ASC
		 LIMIT ?`,
		domain.StatusConfirmed,
		domain.StatusTechnicianEnRoute,
		windowStart,
		windowEnd,
		staleBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkInactivityFlagged(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ? AND inactivity_flagged_at IS NULL", id).
		Update("inactivity_flagged_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
