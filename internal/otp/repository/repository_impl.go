package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/otp/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, bookingID, userID snowflake.ID, purpose domain.Purpose) (*domain.Challenge, error) {
	var challenge domain.Challenge
	err := db.WithContext(ctx).
		Where("booking_id = ? AND user_id = ? AND purpose = ?", bookingID, userID, purpose).
		Order("created_at DESC, id DESC").
		First(&challenge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, challenge *domain.Challenge) error {
	return db.WithContext(ctx).Create(challenge).Error
}

func (r *repo) IncrementAttempts(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) Consume(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE otp_challenges
		 SET verified = ?
		 WHERE id = ? AND verified = ? AND attempts < ?`,
		true,
		id,
		false,
		domain.MaxAttempts,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
