package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fixlane/fixlane/internal/audit/domain"
	auditrepository "github.com/fixlane/fixlane/internal/audit/repository"
	auditservice "github.com/fixlane/fixlane/internal/audit/service"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	bookingrepository "github.com/fixlane/fixlane/internal/booking/repository"
	bookingservice "github.com/fixlane/fixlane/internal/booking/service"
	"github.com/fixlane/fixlane/internal/clock"
	otpdomain "github.com/fixlane/fixlane/internal/otp/domain"
	otprepository "github.com/fixlane/fixlane/internal/otp/repository"
	otpservice "github.com/fixlane/fixlane/internal/otp/service"
	paymentdomain "github.com/fixlane/fixlane/internal/payment/domain"
	paymentrepository "github.com/fixlane/fixlane/internal/payment/repository"
	paymentservice "github.com/fixlane/fixlane/internal/payment/service"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	sched      *Scheduler
	paymentSvc paymentdomain.Service
	clock      *clock.FakeClock
	node       *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&bookingdomain.Booking{},
		&techdomain.TechnicianProfile{},
		&otpdomain.Challenge{},
		&paymentdomain.Payment{},
		&paymentdomain.PaymentEvent{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	otpSvc := otpservice.NewService(otpservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: otprepository.Provide(),
	})
	bookingRepo := bookingrepository.Provide()
	bookingSvc := bookingservice.NewService(bookingservice.Params{
		DB: db, Log: log, Clock: fake, Repo: bookingRepo,
		OTPSvc: otpSvc, AuditSvc: auditSvc,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:        paymentrepository.Provide(),
		BookingRepo: bookingRepo,
		AuditSvc:    auditSvc,
	})
	sched := New(Params{
		DB:          db,
		Log:         log,
		Clock:       fake,
		BookingRepo: bookingRepo,
		BookingSvc:  bookingSvc,
		PaymentSvc:  paymentSvc,
		AuditSvc:    auditSvc,
	})

	return &fixture{db: db, sched: sched, paymentSvc: paymentSvc, clock: fake, node: node}
}

func (f *fixture) seedBooking(t *testing.T, status bookingdomain.Status, scheduledAt time.Time, technicianID snowflake.ID) *bookingdomain.Booking {
	t.Helper()

	booking := &bookingdomain.Booking{
		ID:          f.node.Generate(),
		CustomerID:  1001,
		ServiceID:   f.node.Generate(),
		ScheduledAt: scheduledAt,
		Address:     "Jl. Kemang Raya No. 3",
		Status:      status,
		Amount:      200000,
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}
	if technicianID != 0 {
		booking.TechnicianID = &technicianID
	}
	require.NoError(t, f.db.Create(booking).Error)
	return booking
}

func (f *fixture) seedHeldPayment(t *testing.T, booking *bookingdomain.Booking, autoReleaseAt time.Time) *paymentdomain.Payment {
	t.Helper()
	ctx := context.Background()

	payment, err := f.paymentSvc.Create(ctx, paymentdomain.CreateRequest{
		BookingID: booking.ID,
		Amount:    booking.Amount,
	})
	require.NoError(t, err)
	_, err = f.paymentSvc.Hold(ctx, paymentdomain.HoldRequest{PaymentID: payment.ID})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).
		Where("id = ?", payment.ID).
		Update("auto_release_at", autoReleaseAt).Error)
	payment.AutoReleaseAt = autoReleaseAt
	return payment
}

func (f *fixture) seedProfile(t *testing.T, id snowflake.ID, lastSeen time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&techdomain.TechnicianProfile{
		ID:                id,
		DisplayName:       "Tech",
		VerificationState: techdomain.VerificationVerified,
		Rating:            4.5,
		LastSeenAt:        lastSeen,
		CreatedAt:         f.clock.Now(),
	}).Error)
}

func TestAutoReleaseJobReleasesOverdueEscrow(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()

	booking := f.seedBooking(t, bookingdomain.StatusCompleted, now.Add(-48*time.Hour), 2002)
	payment := f.seedHeldPayment(t, booking, now.Add(-time.Hour))

	require.NoError(t, f.sched.AutoReleaseJob(context.Background()))

	got, err := f.paymentSvc.Get(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusReleased, got.Status)

	// Second run has nothing left to do.
	require.NoError(t, f.sched.AutoReleaseJob(context.Background()))
	events, err := f.paymentSvc.Events(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestSLARefundJobCompensatesBreach(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()
	ctx := context.Background()

	breached := f.seedBooking(t, bookingdomain.StatusConfirmed, now.Add(-5*time.Hour), 2002)
	payment := f.seedHeldPayment(t, breached, now.Add(7*24*time.Hour))

	// Inside the grace window: untouched.
	fresh := f.seedBooking(t, bookingdomain.StatusConfirmed, now.Add(-time.Hour), 2003)

	require.NoError(t, f.sched.SLARefundJob(ctx))

	got, err := f.paymentSvc.Get(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusRefunded, got.Status)
	assert.Equal(t, SLARefundReason, got.RefundReason)

	var cancelled bookingdomain.Booking
	require.NoError(t, f.db.First(&cancelled, "id = ?", breached.ID).Error)
	assert.Equal(t, bookingdomain.StatusCancelled, cancelled.Status)
	assert.Equal(t, SLARefundReason, cancelled.CancelReason)
	assert.Equal(t, bookingdomain.RoleSystem, cancelled.CancelRole)

	var untouched bookingdomain.Booking
	require.NoError(t, f.db.First(&untouched, "id = ?", fresh.ID).Error)
	assert.Equal(t, bookingdomain.StatusConfirmed, untouched.Status)

	// Re-run: the breached booking no longer matches the predicate.
	require.NoError(t, f.sched.SLARefundJob(ctx))
	events, err := f.paymentSvc.Events(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestSLARefundJobWithoutPaymentStillCancels(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()

	breached := f.seedBooking(t, bookingdomain.StatusTechnicianEnRoute, now.Add(-6*time.Hour), 2002)

	require.NoError(t, f.sched.SLARefundJob(context.Background()))

	var cancelled bookingdomain.Booking
	require.NoError(t, f.db.First(&cancelled, "id = ?", breached.ID).Error)
	assert.Equal(t, bookingdomain.StatusCancelled, cancelled.Status)
}

func TestInactivityFlagJob(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()
	ctx := context.Background()

	staleTech := snowflake.ID(2002)
	activeTech := snowflake.ID(2003)
	f.seedProfile(t, staleTech, now.Add(-2*time.Hour))
	f.seedProfile(t, activeTech, now.Add(-5*time.Minute))

	dueSoon := f.seedBooking(t, bookingdomain.StatusConfirmed, now.Add(time.Hour), staleTech)
	covered := f.seedBooking(t, bookingdomain.StatusConfirmed, now.Add(time.Hour), activeTech)
	farOut := f.seedBooking(t, bookingdomain.StatusConfirmed, now.Add(6*time.Hour), staleTech)

	require.NoError(t, f.sched.InactivityFlagJob(ctx))

	var flagged bookingdomain.Booking
	require.NoError(t, f.db.First(&flagged, "id = ?", dueSoon.ID).Error)
	require.NotNil(t, flagged.InactivityFlaggedAt)
	// Flagging never reassigns or cancels.
	assert.Equal(t, bookingdomain.StatusConfirmed, flagged.Status)

	var skipped bookingdomain.Booking
	require.NoError(t, f.db.First(&skipped, "id = ?", covered.ID).Error)
	assert.Nil(t, skipped.InactivityFlaggedAt)

	var outside bookingdomain.Booking
	require.NoError(t, f.db.First(&outside, "id = ?", farOut.ID).Error)
	assert.Nil(t, outside.InactivityFlaggedAt)

	// Re-run does not duplicate the flag audit entry.
	require.NoError(t, f.sched.InactivityFlagJob(ctx))
	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "technician.inactivity_flagged").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRunOnceCoversAllJobs(t *testing.T) {
	f := setup(t)
	now := f.clock.Now()

	booking := f.seedBooking(t, bookingdomain.StatusCompleted, now.Add(-48*time.Hour), 2002)
	payment := f.seedHeldPayment(t, booking, now.Add(-time.Hour))

	require.NoError(t, f.sched.RunOnce(context.Background()))

	got, err := f.paymentSvc.Get(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusReleased, got.Status)
}
