package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error

	// ApplyTransition performs the single-statement guarded update backing
	// every status change: UPDATE ... WHERE id = ? AND status = <from>.
	// Returns false when the precondition no longer held.
	ApplyTransition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updates map[string]any) (bool, error)

	// AssignTechnician stamps the chosen technician, offering and price while
	// the booking is still pending and unassigned.
	AssignTechnician(ctx context.Context, db *gorm.DB, id, technicianID, offeringID snowflake.ID, price int64) (bool, error)

	// ListSLABreached returns bookings still confirmed/technician_en_route
	// whose scheduled time is before the cutoff.
	ListSLABreached(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Booking, error)

	// ListInactivityCandidates returns bookings due inside the lookahead
	// window whose assigned technician was last seen before staleBefore and
	// that have not been flagged yet.
	ListInactivityCandidates(ctx context.Context, db *gorm.DB, windowStart, windowEnd, staleBefore time.Time, limit int) ([]Booking, error)

	// MarkInactivityFlagged is predicate-guarded so re-running the sweep
	// flags each booking at most once.
	MarkInactivityFlagged(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}
