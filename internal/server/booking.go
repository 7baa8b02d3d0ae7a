package server

import (
	"net/http"
	"time"

	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) HandleGetBooking(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	booking, err := s.bookingSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type transitionRequest struct {
	Target       string `json:"target" binding:"required"`
	OTPCode      string `json:"otp_code"`
	Notes        string `json:"notes"`
	CancelReason string `json:"cancel_reason"`
	DeviceID     string `json:"device_id"`
}

func (s *Server) HandleTransition(c *gin.Context) {
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

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errBadRequest)
		return
	}

	booking, err := s.bookingSvc.Transition(c.Request.Context(), bookingdomain.TransitionRequest{
		BookingID:    id,
		Target:       bookingdomain.Status(req.Target),
		Actor:        actor,
		OTPCode:      req.OTPCode,
		Notes:        req.Notes,
		CancelReason: req.CancelReason,
		DeviceID:     req.DeviceID,
		IPAddress:    c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

type issueOTPRequest struct {
	Purpose string `json:"purpose" binding:"required"`
}

type issueOTPResponse struct {
	ChallengeID string `json:"challenge_id"`
	ExpiresAt   string `json:"expires_at"`
}

// HandleIssueOTP issues a start or completion code for the requesting actor.
// The code itself is delivered out of band and never returned here.
func (s *Server) HandleIssueOTP(c *gin.Context) {
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

	var req issueOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errBadRequest)
		return
	}
	purpose := otpdomain.Purpose(req.Purpose)
	if !purpose.Valid() {
		AbortWithError(c, otpdomain.ErrInvalidPurpose)
		return
	}

	challenge, err := s.otpSvc.Issue(c.Request.Context(), id, actor.ID, purpose)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issueOTPResponse{
		ChallengeID: challenge.ID.String(),
		ExpiresAt:   challenge.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) HandleListBookingAudit(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logs, err := s.auditSvc.ListByBooking(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}
