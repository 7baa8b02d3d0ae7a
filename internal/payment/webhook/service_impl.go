package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/fixlane/fixlane/internal/config"
	obsmetrics "github.com/fixlane/fixlane/internal/observability/metrics"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"

	// The webhook may arrive before the local create-order write commits;
	// the lookup retries briefly to absorb that race.
	defaultLookupAttempts = 5
	defaultLookupDelay    = 200 * time.Millisecond
)

var (
	ErrInvalidSignature = errors.New("webhook_invalid_signature")
	ErrInvalidPayload   = errors.New("webhook_invalid_payload")
)

// Notification is the gateway's callback payload.
type Notification struct {
	Event         string `json:"event"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

type Config struct {
	LookupAttempts int
	LookupDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.LookupAttempts <= 0 {
		c.LookupAttempts = defaultLookupAttempts
	}
	if c.LookupDelay <= 0 {
		c.LookupDelay = defaultLookupDelay
	}
	return c
}

type Params struct {
	fx.In

	Log        *zap.Logger
	AppCfg     config.Config
	PaymentSvc paymentdomain.Service
	BookingSvc bookingdomain.Service
	AuditSvc   auditdomain.Service
	Cfg        Config `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	secret     []byte
	cfg        Config
	paymentSvc paymentdomain.Service
	bookingSvc bookingdomain.Service
	auditSvc   auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		secret:     []byte(strings.TrimSpace(p.AppCfg.GatewayWebhookSecret)),
		cfg:        p.Cfg.withDefaults(),
		paymentSvc: p.PaymentSvc,
		bookingSvc: p.BookingSvc,
		auditSvc:   p.AuditSvc,
	}
}

// Sign computes the signature the gateway attaches to a payload. Exposed for
// tests and local tooling.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Ingest verifies authenticity before any processing; an invalid or missing
// signature is rejected without side effects.
func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) error {
	if len(s.secret) == 0 {
		return ErrInvalidSignature
	}
	signature = strings.TrimSpace(signature)
	if signature == "" || !hmac.Equal([]byte(Sign(s.secret, payload)), []byte(signature)) {
		obsmetrics.IncWebhookEvent("unknown", "rejected_signature")
		return ErrInvalidSignature
	}

	var notification Notification
	if err := json.Unmarshal(payload, &notification); err != nil || notification.OrderID == "" {
		obsmetrics.IncWebhookEvent("unknown", "invalid_payload")
		return ErrInvalidPayload
	}

	switch notification.Event {
	case EventPaymentCaptured:
		return s.handleCaptured(ctx, notification)
	case EventPaymentFailed:
		return s.handleFailed(ctx, notification)
	default:
		s.log.Info("ignoring unhandled gateway event", zap.String("event", notification.Event))
		obsmetrics.IncWebhookEvent(notification.Event, "ignored")
		return nil
	}
}

func (s *Service) handleCaptured(ctx context.Context, notification Notification) error {
	payment, err := s.resolvePayment(ctx, notification.OrderID)
	if err != nil {
		obsmetrics.IncWebhookEvent(notification.Event, "not_found")
		return err
	}

	switch payment.Status {
	case paymentdomain.StatusHeldInEscrow, paymentdomain.StatusReleased, paymentdomain.StatusRefunded:
		// Re-delivered capture: already reconciled.
		obsmetrics.IncWebhookEvent(notification.Event, "noop")
		return nil
	}

	if _, err := s.paymentSvc.Hold(ctx, paymentdomain.HoldRequest{
		PaymentID:            payment.ID,
		IdempotencyKey:       fmt.Sprintf("gateway_capture:%s", notification.OrderID),
		GatewayTransactionID: notification.TransactionID,
	}); err != nil {
		return err
	}

	_, err = s.bookingSvc.Transition(ctx, bookingdomain.TransitionRequest{
		BookingID: payment.BookingID,
		Target:    bookingdomain.StatusConfirmed,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	if err != nil && !errors.Is(err, bookingdomain.ErrInvalidTransition) {
		return err
	}
	if err != nil {
		// Funds are held either way; a booking that has already moved on
		// must not fail the acknowledgement.
		s.log.Warn("booking not advanced on capture",
			zap.Int64("booking_id", int64(payment.BookingID)),
			zap.Error(err),
		)
	}

	obsmetrics.IncWebhookEvent(notification.Event, "processed")
	s.log.Info("gateway capture reconciled",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.String("order_id", notification.OrderID),
	)
	return nil
}

func (s *Service) handleFailed(ctx context.Context, notification Notification) error {
	payment, err := s.resolvePayment(ctx, notification.OrderID)
	if err != nil {
		obsmetrics.IncWebhookEvent(notification.Event, "not_found")
		return err
	}

	// The booking stays where it is; the customer retries payment.
	if _, err := s.paymentSvc.MarkFailed(ctx, payment.ID, notification.Reason); err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidState) {
			obsmetrics.IncWebhookEvent(notification.Event, "noop")
			return nil
		}
		return err
	}

	obsmetrics.IncWebhookEvent(notification.Event, "processed")
	return nil
}

// resolvePayment looks up the payment by the gateway order identifier,
// retrying a bounded number of times with a fixed delay. After the bound it
// returns ErrPaymentNotVisible so the gateway re-delivers later.
func (s *Service) resolvePayment(ctx context.Context, orderID string) (*paymentdomain.Payment, error) {
	for attempt := 0; attempt < s.cfg.LookupAttempts; attempt++ {
		payment, err := s.paymentSvc.GetByOrderID(ctx, orderID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, paymentdomain.ErrNotFound) {
			return nil, err
		}
		if attempt == s.cfg.LookupAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.LookupDelay):
		}
	}
	return nil, paymentdomain.ErrPaymentNotVisible
}
