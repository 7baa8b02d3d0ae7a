package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/dispatch/domain"
	"github.com/fixlane/fixlane/internal/dispatch/ranking"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	BookingRepo bookingdomain.Repository
	TechRepo    techdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	bookingRepo bookingdomain.Repository
	techRepo    techdomain.Repository
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("dispatch.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		bookingRepo: p.BookingRepo,
		techRepo:    p.TechRepo,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	booking, err := s.bookingRepo.Get(ctx, s.db, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != bookingdomain.StatusPending || booking.TechnicianID != nil {
		return nil, domain.ErrNotDispatchable
	}

	candidates, err := s.buildCandidates(ctx, booking)
	if err != nil {
		return nil, err
	}

	ranked, err := ranking.Rank(candidates)
	if err != nil {
		return nil, err
	}

	assignmentType := req.Type
	if assignmentType == "" {
		assignmentType = domain.AssignmentAuto
	}

	chosen, reason, err := pickChoice(ranked, assignmentType, req.TechnicianID)
	if err != nil {
		return nil, err
	}

	assigned, err := s.bookingRepo.AssignTechnician(ctx, s.db,
		booking.ID, chosen.Candidate.Offering.TechnicianID, chosen.Candidate.Offering.ID, chosen.Candidate.Offering.Price)
	if err != nil {
		return nil, err
	}
	if !assigned {
		// A concurrent dispatch or cancellation won the row.
		return nil, domain.ErrNotDispatchable
	}

	decision, err := s.persistDecision(ctx, booking, chosen, ranked, assignmentType, reason, req.Actor)
	if err != nil {
		return nil, err
	}

	updated, err := s.bookingRepo.Get(ctx, s.db, booking.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("technician assigned",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.Int64("technician_id", int64(chosen.Candidate.Offering.TechnicianID)),
		zap.String("assignment_type", string(assignmentType)),
		zap.Float64("score", chosen.Score),
	)
	return &domain.DispatchResult{
		Booking:  updated,
		Decision: decision,
		Ranked:   ranked,
	}, nil
}

// buildCandidates fetches eligible offerings and computes the signal bundle
// for each, fresh for this booking.
func (s *Service) buildCandidates(ctx context.Context, booking *bookingdomain.Booking) ([]domain.Candidate, error) {
	offerings, profiles, err := s.techRepo.ListEligibleOfferings(ctx, s.db, booking.ServiceID)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(offerings))
	for _, offering := range offerings {
		profile, ok := profiles[offering.TechnicianID]
		if !ok {
			continue
		}

		active, err := s.repo.CountActiveBookings(ctx, s.db, offering.TechnicianID)
		if err != nil {
			return nil, err
		}
		completed, cancelled, onTime, err := s.repo.CompletionStats(ctx, s.db, offering.TechnicianID)
		if err != nil {
			return nil, err
		}
		preferred, err := s.repo.HasPreferredRelationship(ctx, s.db, booking.CustomerID, offering.TechnicianID, booking.ServiceID)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, domain.Candidate{
			Offering: offering,
			Profile:  profile,
			Signals: domain.Signals{
				DistanceKm:     ranking.Haversine(booking.Lat, booking.Lng, profile.Lat, profile.Lng),
				ActiveBookings: active,
				CompletedJobs:  completed,
				CancelledJobs:  cancelled,
				OnTimeJobs:     onTime,
				Preferred:      preferred,
			},
		})
	}
	return candidates, nil
}

func pickChoice(ranked []domain.ScoredCandidate, assignmentType domain.AssignmentType, technicianID *snowflake.ID) (domain.ScoredCandidate, string, error) {
	if technicianID == nil {
		return ranked[0], ranking.Reason(ranked[0]), nil
	}

	for _, candidate := range ranked {
		if candidate.Candidate.Offering.TechnicianID == *technicianID {
			switch assignmentType {
			case domain.AssignmentManualAdmin:
				return candidate, "assigned manually by admin", nil
			case domain.AssignmentCustomerSelected:
				return candidate, "selected by customer", nil
			default:
				return candidate, ranking.Reason(candidate), nil
			}
		}
	}
	return domain.ScoredCandidate{}, "", domain.ErrTechnicianNotRanked
}

func (s *Service) persistDecision(
	ctx context.Context,
	booking *bookingdomain.Booking,
	chosen domain.ScoredCandidate,
	ranked []domain.ScoredCandidate,
	assignmentType domain.AssignmentType,
	reason string,
	actor bookingdomain.Actor,
) (*domain.AssignmentDecision, error) {
	snapshot := map[string]any{
		"chosen":     chosen.Factors,
		"candidates": factorSummary(ranked),
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}

	decision := &domain.AssignmentDecision{
		ID:             s.genID.Generate(),
		BookingID:      booking.ID,
		TechnicianID:   chosen.Candidate.Offering.TechnicianID,
		OfferingID:     chosen.Candidate.Offering.ID,
		AssignmentType: assignmentType,
		Score:          chosen.Score,
		Factors:        datatypes.JSON(raw),
		Reason:         reason,
		ActorType:      string(actor.Role),
		ActorID:        strconv.FormatInt(int64(actor.ID), 10),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.InsertDecision(ctx, s.db, decision); err != nil {
		return nil, err
	}

	bookingID := booking.ID
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		BookingID:  &bookingID,
		ActorType:  string(actor.Role),
		ActorID:    decision.ActorID,
		Action:     "dispatch.assignment",
		TargetType: "booking",
		TargetID:   booking.ID.String(),
		Metadata: map[string]any{
			"technician_id":   chosen.Candidate.Offering.TechnicianID.String(),
			"assignment_type": string(assignmentType),
			"score":           chosen.Score,
			"reason":          reason,
		},
	})
	return decision, nil
}

func factorSummary(ranked []domain.ScoredCandidate) []map[string]any {
	out := make([]map[string]any, 0, len(ranked))
	for _, candidate := range ranked {
		out = append(out, map[string]any{
			"technician_id": candidate.Candidate.Offering.TechnicianID.String(),
			"score":         candidate.Score,
			"factors":       candidate.Factors,
		})
	}
	return out
}
