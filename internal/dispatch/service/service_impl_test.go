package service

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
	"github.com/fixlane/fixlane/internal/dispatch/domain"
	dispatchrepository "github.com/fixlane/fixlane/internal/dispatch/repository"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	techrepository "github.com/fixlane/fixlane/internal/technician/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const serviceID = snowflake.ID(5005)

type fixture struct {
	db   *gorm.DB
	svc  domain.Service
	node *snowflake.Node
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
		&techdomain.TechnicianOffering{},
		&domain.AssignmentDecision{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zaptest.NewLogger(t)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        dispatchrepository.Provide(),
		BookingRepo: bookingrepository.Provide(),
		TechRepo:    techrepository.Provide(),
		AuditSvc:    auditSvc,
	})
	return &fixture{db: db, svc: svc, node: node}
}

func (f *fixture) seedBooking(t *testing.T, status bookingdomain.Status) *bookingdomain.Booking {
	t.Helper()

	booking := &bookingdomain.Booking{
		ID:          f.node.Generate(),
		CustomerID:  1001,
		ServiceID:   serviceID,
		ScheduledAt: time.Now().Add(3 * time.Hour),
		Address:     "Jl. Senopati No. 20",
		Lat:         -6.2300,
		Lng:         106.8100,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(booking).Error)
	return booking
}

type techOpts struct {
	lat, lng  float64
	riskScore float64
	state     techdomain.VerificationState
	price     int64
}

func (f *fixture) seedTechnician(t *testing.T, id snowflake.ID, opts techOpts) {
	t.Helper()

	if opts.state == "" {
		opts.state = techdomain.VerificationVerified
	}
	if opts.price == 0 {
		opts.price = 150000
	}
	require.NoError(t, f.db.Create(&techdomain.TechnicianProfile{
		ID:                id,
		DisplayName:       fmt.Sprintf("Tech %d", id),
		VerificationState: opts.state,
		RiskScore:         opts.riskScore,
		Rating:            4.5,
		Lat:               opts.lat,
		Lng:               opts.lng,
		LastSeenAt:        time.Now().UTC(),
		CreatedAt:         time.Now().UTC(),
	}).Error)
	require.NoError(t, f.db.Create(&techdomain.TechnicianOffering{
		ID:               f.node.Generate(),
		TechnicianID:     id,
		ServiceID:        serviceID,
		Price:            opts.price,
		CoverageRadiusKm: 15,
		Experience:       techdomain.TierSenior,
		Approved:         true,
		Active:           true,
		CreatedAt:        time.Now().UTC(),
	}).Error)
}

func TestDispatchAssignsTopRankedTechnician(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)

	near := snowflake.ID(2001)
	far := snowflake.ID(2002)
	f.seedTechnician(t, near, techOpts{lat: -6.2310, lng: 106.8110})
	f.seedTechnician(t, far, techOpts{lat: -6.3000, lng: 106.9000})

	result, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.NoError(t, err)

	require.NotNil(t, result.Booking.TechnicianID)
	assert.Equal(t, near, *result.Booking.TechnicianID)
	assert.Equal(t, int64(150000), result.Booking.Amount)
	require.Len(t, result.Ranked, 2)

	assert.Equal(t, domain.AssignmentAuto, result.Decision.AssignmentType)
	assert.Equal(t, near, result.Decision.TechnicianID)
	assert.NotEmpty(t, result.Decision.Reason)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("booking_id = ? AND action = ?", booking.ID, "dispatch.assignment").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDispatchRejectsNonPendingBooking(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusConfirmed)
	f.seedTechnician(t, 2001, techOpts{lat: -6.2310, lng: 106.8110})

	_, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.ErrorIs(t, err, domain.ErrNotDispatchable)
}

func TestDispatchIsSingleShot(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)
	f.seedTechnician(t, 2001, techOpts{lat: -6.2310, lng: 106.8110})
	ctx := context.Background()

	_, err := f.svc.Dispatch(ctx, domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.NoError(t, err)

	_, err = f.svc.Dispatch(ctx, domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.ErrorIs(t, err, domain.ErrNotDispatchable)
}

func TestDispatchNoEligibleTechnician(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)

	f.seedTechnician(t, 2001, techOpts{
		lat: -6.2310, lng: 106.8110,
		state: techdomain.VerificationSuspended,
	})
	f.seedTechnician(t, 2002, techOpts{
		lat: -6.2310, lng: 106.8110,
		riskScore: domain.RiskThreshold + 10,
	})

	_, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.ErrorIs(t, err, domain.ErrNoEligibleTechnician)
}

func TestDispatchCustomerSelectedPin(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)

	near := snowflake.ID(2001)
	pinned := snowflake.ID(2002)
	f.seedTechnician(t, near, techOpts{lat: -6.2310, lng: 106.8110})
	f.seedTechnician(t, pinned, techOpts{lat: -6.2600, lng: 106.8500, price: 180000})

	result, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID:    booking.ID,
		Actor:        bookingdomain.Actor{Role: bookingdomain.RoleCustomer, ID: 1001},
		Type:         domain.AssignmentCustomerSelected,
		TechnicianID: &pinned,
	})
	require.NoError(t, err)
	assert.Equal(t, pinned, *result.Booking.TechnicianID)
	assert.Equal(t, int64(180000), result.Booking.Amount)
	assert.Equal(t, "selected by customer", result.Decision.Reason)
}

func TestDispatchPinnedTechnicianMustBeRanked(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)
	f.seedTechnician(t, 2001, techOpts{lat: -6.2310, lng: 106.8110})

	// Suspended, so excluded from the ranking even when pinned.
	suspended := snowflake.ID(2002)
	f.seedTechnician(t, suspended, techOpts{
		lat: -6.2310, lng: 106.8110,
		state: techdomain.VerificationSuspended,
	})

	_, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID:    booking.ID,
		Actor:        bookingdomain.Actor{Role: bookingdomain.RoleAdmin, ID: 1},
		Type:         domain.AssignmentManualAdmin,
		TechnicianID: &suspended,
	})
	require.ErrorIs(t, err, domain.ErrTechnicianNotRanked)
}

func TestDispatchPrefersTrustedTechnician(t *testing.T) {
	f := setup(t)
	booking := f.seedBooking(t, bookingdomain.StatusPending)

	near := snowflake.ID(2001)
	trusted := snowflake.ID(2002)
	f.seedTechnician(t, near, techOpts{lat: -6.2310, lng: 106.8110})
	f.seedTechnician(t, trusted, techOpts{lat: -6.2600, lng: 106.8500})

	// A prior completed booking for the same customer and service makes the
	// farther technician preferred.
	trustedID := trusted
	require.NoError(t, f.db.Create(&bookingdomain.Booking{
		ID:           f.node.Generate(),
		CustomerID:   booking.CustomerID,
		TechnicianID: &trustedID,
		ServiceID:    serviceID,
		ScheduledAt:  time.Now().Add(-72 * time.Hour),
		Address:      "Jl. Senopati No. 20",
		Status:       bookingdomain.StatusCompleted,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}).Error)

	result, err := f.svc.Dispatch(context.Background(), domain.DispatchRequest{
		BookingID: booking.ID,
		Actor:     bookingdomain.Actor{Role: bookingdomain.RoleSystem},
	})
	require.NoError(t, err)
	assert.Equal(t, trusted, *result.Booking.TechnicianID)
	assert.True(t, result.Decision.Score > 0)
	assert.Contains(t, result.Decision.Reason, "trusted by this customer")
}
