package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/clock"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  otpdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  otpdomain.Repository
}

func NewService(p Params) otpdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("otp.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Issue(ctx context.Context, bookingID, userID snowflake.ID, purpose otpdomain.Purpose) (*otpdomain.Challenge, error) {
	if !purpose.Valid() {
		return nil, otpdomain.ErrInvalidPurpose
	}

	now := s.clock.Now()

	latest, err := s.repo.Latest(ctx, s.db, bookingID, userID, purpose)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		elapsed := now.Sub(latest.CreatedAt)
		if elapsed < otpdomain.ResendCooldown {
			return nil, &otpdomain.CooldownError{RetryAfter: otpdomain.ResendCooldown - elapsed}
		}
	}

	code, err := generateCode(otpdomain.CodeLength)
	if err != nil {
		return nil, err
	}

	challenge := &otpdomain.Challenge{
		ID:        s.genID.Generate(),
		BookingID: bookingID,
		UserID:    userID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(otpdomain.TTL),
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, challenge); err != nil {
		return nil, err
	}

	s.log.Info("otp challenge issued",
		zap.Int64("booking_id", int64(bookingID)),
		zap.String("purpose", string(purpose)),
	)
	return challenge, nil
}

func (s *Service) Verify(ctx context.Context, bookingID, userID snowflake.ID, purpose otpdomain.Purpose, code string) error {
	if !purpose.Valid() {
		return otpdomain.ErrInvalidPurpose
	}

	challenge, err := s.repo.Latest(ctx, s.db, bookingID, userID, purpose)
	if err != nil {
		return err
	}
	if challenge == nil || challenge.Verified {
		return otpdomain.ErrNoActiveChallenge
	}
	if s.clock.Now().After(challenge.ExpiresAt) {
		return otpdomain.ErrChallengeExpired
	}
	if challenge.Attempts >= otpdomain.MaxAttempts {
		return otpdomain.ErrAttemptsExceeded
	}

	if code == "" || code != challenge.Code {
		if err := s.repo.IncrementAttempts(ctx, s.db, challenge.ID); err != nil {
			return err
		}
		remaining := otpdomain.MaxAttempts - challenge.Attempts - 1
		if remaining <= 0 {
			return otpdomain.ErrAttemptsExceeded
		}
		return &otpdomain.MismatchError{AttemptsRemaining: remaining}
	}

	consumed, err := s.repo.Consume(ctx, s.db, challenge.ID)
	if err != nil {
		return err
	}
	if !consumed {
		// A concurrent verify or attempt-exhaustion won the row.
		return otpdomain.ErrNoActiveChallenge
	}
	return nil
}

func generateCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
