package server

import (
	"net/http"

	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type createPaymentRequest struct {
	BookingID      string `json:"booking_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
	GatewayOrderID string `json:"gateway_order_id"`
}

func (s *Server) HandleCreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errBadRequest)
		return
	}
	bookingID, err := parseID(req.BookingID, "booking_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreateRequest{
		BookingID:      bookingID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		GatewayOrderID: req.GatewayOrderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) HandleGetPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (s *Server) HandleListPaymentEvents(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.paymentSvc.Events(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

type holdPaymentRequest struct {
	IdempotencyKey       string `json:"idempotency_key"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
}

func (s *Server) HandleHoldPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req holdPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, errBadRequest)
			return
		}
	}

	payment, err := s.paymentSvc.Hold(c.Request.Context(), paymentdomain.HoldRequest{
		PaymentID:            id,
		IdempotencyKey:       req.IdempotencyKey,
		GatewayTransactionID: req.GatewayTransactionID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type releasePaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) HandleReleasePayment(c *gin.Context) {
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

	var req releasePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, errBadRequest)
			return
		}
	}

	payment, err := s.paymentSvc.Release(c.Request.Context(), paymentdomain.ReleaseRequest{
		PaymentID:      id,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type refundPaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason" binding:"required"`
}

func (s *Server) HandleRefundPayment(c *gin.Context) {
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

	var req refundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, paymentdomain.ErrRefundReasonRequired)
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), paymentdomain.RefundRequest{
		PaymentID:      id,
		IdempotencyKey: req.IdempotencyKey,
		Reason:         req.Reason,
		Actor:          actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
