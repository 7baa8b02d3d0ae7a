package server

import (
	"fmt"
	"net/http"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	dispatchdomain "github.com/fixlane/fixlane/internal/dispatch/domain"
	"github.com/gin-gonic/gin"
)

type dispatchRequest struct {
	TechnicianID string `json:"technician_id"`
}

type rankedCandidate struct {
	TechnicianID string                 `json:"technician_id"`
	OfferingID   string                 `json:"offering_id"`
	Score        float64                `json:"score"`
	Factors      dispatchdomain.Factors `json:"factors"`
}

type dispatchResponse struct {
	Booking  *bookingdomain.Booking             `json:"booking"`
	Decision *dispatchdomain.AssignmentDecision `json:"decision"`
	Ranked   []rankedCandidate                  `json:"ranked"`
}

// HandleDispatch assigns a technician to a pending booking. Without a pinned
// technician the top-ranked candidate wins; customers and admins may pin one,
// which still has to pass eligibility.
func (s *Server) HandleDispatch(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	actor, err := actorFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req dispatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, errBadRequest)
			return
		}
	}

	dispatchReq := dispatchdomain.DispatchRequest{
		BookingID: id,
		Actor:     actor,
		Type:      dispatchdomain.AssignmentAuto,
	}
	if req.TechnicianID != "" {
		technicianID, err := snowflake.ParseString(req.TechnicianID)
		if err != nil {
			AbortWithError(c, fmt.Errorf("%w: invalid technician_id", errBadRequest))
			return
		}
		dispatchReq.TechnicianID = &technicianID
		switch actor.Role {
		case bookingdomain.RoleAdmin:
			dispatchReq.Type = dispatchdomain.AssignmentManualAdmin
		case bookingdomain.RoleCustomer:
			dispatchReq.Type = dispatchdomain.AssignmentCustomerSelected
		default:
			AbortWithError(c, bookingdomain.ErrRoleNotAllowed)
			return
		}
	}

	result, err := s.dispatchSvc.Dispatch(c.Request.Context(), dispatchReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ranked := make([]rankedCandidate, 0, len(result.Ranked))
	for _, scored := range result.Ranked {
		ranked = append(ranked, rankedCandidate{
			TechnicianID: scored.Candidate.Profile.ID.String(),
			OfferingID:   scored.Candidate.Offering.ID.String(),
			Score:        scored.Score,
			Factors:      scored.Factors,
		})
	}

	c.JSON(http.StatusOK, dispatchResponse{
		Booking:  result.Booking,
		Decision: result.Decision,
		Ranked:   ranked,
	})
}
