package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) GetByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, "booking_id = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) GetByOrderID(ctx context.Context, db *gorm.DB, orderID string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).First(&payment, "gateway_order_id = ? OR idempotency_key = ?", orderID, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentEvent, error) {
	var events []domain.PaymentEvent
	err := db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, updates map[string]any) (bool, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListAutoReleasable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Payment, error) {
	var payments []domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT p.*
		 FROM payments p
		 JOIN bookings b ON b.id = p.booking_id
		 WHERE p.status = ?
		   AND p.auto_release_at < ?
		   AND b.status <> ?
		 ORDER BY p.auto_release_at ASC
		 LIMIT ?`,
		domain.StatusHeldInEscrow,
		now,
		bookingdomain.StatusDisputed,
		limit,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
