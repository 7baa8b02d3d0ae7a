package server

import (
	"errors"
	"net/http"

	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	dispatchdomain "github.com/fixlane/fixlane/internal/dispatch/domain"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"github.com/fixlane/fixlane/internal/payment/webhook"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
	AttemptsRemaining int `json:"attempts_remaining,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// AbortWithError records the error for the mapping middleware and stops the
// handler chain.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandlingMiddleware translates domain errors into HTTP responses so
// handlers never pick status codes themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, payload := mapError(err)
		c.JSON(status, errorResponse{Error: payload})
	}
}

func mapError(err error) (int, errorPayload) {
	payload := errorPayload{Type: "internal_error", Message: "internal server error"}

	var cooldown *otpdomain.CooldownError
	if errors.As(err, &cooldown) {
		return http.StatusTooManyRequests, errorPayload{
			Type:              "otp_resend_cooldown",
			Message:           cooldown.Error(),
			RetryAfterSeconds: int(cooldown.RetryAfter.Seconds()) + 1,
		}
	}
	var mismatch *otpdomain.MismatchError
	if errors.As(err, &mismatch) {
		return http.StatusBadRequest, errorPayload{
			Type:              "otp_code_mismatch",
			Message:           mismatch.Error(),
			AttemptsRemaining: mismatch.AttemptsRemaining,
		}
	}

	switch {
	case errors.Is(err, bookingdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotVisible):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, bookingdomain.ErrRoleNotAllowed),
		errors.Is(err, bookingdomain.ErrNotBookingCustomer),
		errors.Is(err, bookingdomain.ErrNotBookingTechnician),
		errors.Is(err, paymentdomain.ErrRefundNotAllowed):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}

	case errors.Is(err, bookingdomain.ErrConflict),
		errors.Is(err, dispatchdomain.ErrNotDispatchable),
		errors.Is(err, dispatchdomain.ErrTechnicianNotRanked),
		errors.Is(err, paymentdomain.ErrInvalidState),
		errors.Is(err, paymentdomain.ErrBookingNotCompleted):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.Is(err, dispatchdomain.ErrNoEligibleTechnician):
		return http.StatusUnprocessableEntity, errorPayload{Type: "no_eligible_technician", Message: err.Error()}

	case errors.Is(err, otpdomain.ErrAttemptsExceeded):
		return http.StatusTooManyRequests, errorPayload{Type: "otp_attempts_exceeded", Message: err.Error()}

	case errors.Is(err, webhook.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{Type: "invalid_signature", Message: err.Error()}

	case errors.Is(err, bookingdomain.ErrUnknownStatus),
		errors.Is(err, bookingdomain.ErrInvalidTransition),
		errors.Is(err, bookingdomain.ErrTechnicianRequired),
		errors.Is(err, bookingdomain.ErrCancelReasonRequired),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrRefundReasonRequired),
		errors.Is(err, otpdomain.ErrInvalidPurpose),
		errors.Is(err, otpdomain.ErrNoActiveChallenge),
		errors.Is(err, otpdomain.ErrChallengeExpired),
		errors.Is(err, otpdomain.ErrCodeMismatch),
		errors.Is(err, webhook.ErrInvalidPayload),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorPayload{Type: "bad_request", Message: err.Error()}
	}

	return http.StatusInternalServerError, payload
}
