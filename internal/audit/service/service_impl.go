package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		BookingID:  entry.BookingID,
		ActorType:  strings.TrimSpace(entry.ActorType),
		ActorID:    strings.TrimSpace(entry.ActorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		DeviceID:   strings.TrimSpace(entry.DeviceID),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) ListByBooking(ctx context.Context, bookingID snowflake.ID) ([]auditdomain.AuditLog, error) {
	return s.repo.ListByBooking(ctx, s.db, bookingID)
}
