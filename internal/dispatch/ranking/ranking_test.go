package ranking

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/fixlane/fixlane/internal/dispatch/domain"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(id int64, mutate func(*domain.Candidate)) domain.Candidate {
	c := domain.Candidate{
		Offering: techdomain.TechnicianOffering{
			ID:               snowflake.ID(id * 10),
			TechnicianID:     snowflake.ID(id),
			Price:            50000,
			CoverageRadiusKm: 10,
			Experience:       techdomain.TierIntermediate,
			Approved:         true,
			Active:           true,
		},
		Profile: techdomain.TechnicianProfile{
			ID:                snowflake.ID(id),
			VerificationState: techdomain.VerificationVerified,
			RiskScore:         10,
			Rating:            4.5,
		},
		Signals: domain.Signals{
			DistanceKm:     2,
			ActiveBookings: 1,
			CompletedJobs:  30,
			CancelledJobs:  2,
			OnTimeJobs:     28,
		},
	}
	if mutate != nil {
		mutate(&c)
	}
	return c
}

func TestHaversine(t *testing.T) {
	assert.Zero(t, Haversine(-6.2, 106.8, -6.2, 106.8))

	// Jakarta (Monas) to Bandung (Gedung Sate) is roughly 118 km.
	d := Haversine(-6.1754, 106.8272, -6.9025, 107.6186)
	assert.InDelta(t, 118, d, 5)
}

func TestProximityScore(t *testing.T) {
	assert.Equal(t, 100.0, ProximityScore(0, 10))
	assert.Equal(t, 50.0, ProximityScore(5, 10))
	assert.Equal(t, 0.0, ProximityScore(10, 10))
	assert.Equal(t, 0.0, ProximityScore(15, 10))
	assert.Equal(t, 0.0, ProximityScore(3, 0))
}

func TestCompletionScoreNeutralWithoutHistory(t *testing.T) {
	assert.Equal(t, 50.0, CompletionScore(0, 0))
	assert.Equal(t, 100.0, CompletionScore(10, 0))
	assert.Equal(t, 80.0, CompletionScore(8, 2))
}

func TestSLAScoreNeutralWithoutHistory(t *testing.T) {
	assert.Equal(t, 50.0, SLAScore(0, 0))
	assert.Equal(t, 90.0, SLAScore(9, 10))
}

func TestWorkloadScore(t *testing.T) {
	assert.Equal(t, 100.0, WorkloadScore(0, 5))
	assert.Equal(t, 60.0, WorkloadScore(2, 5))
	assert.Equal(t, 0.0, WorkloadScore(5, 5))
	assert.Equal(t, 0.0, WorkloadScore(7, 5))
}

func TestSkillScoreClampedAt100(t *testing.T) {
	score := SkillScore(techdomain.TierExpert, 500, 5)
	assert.Equal(t, 100.0, score)

	junior := SkillScore(techdomain.TierJunior, 0, 0)
	assert.Equal(t, 55.0, junior)
}

func TestEligibleExclusions(t *testing.T) {
	assert.True(t, Eligible(candidate(1, nil)))

	suspended := candidate(2, func(c *domain.Candidate) {
		c.Profile.VerificationState = techdomain.VerificationSuspended
	})
	assert.False(t, Eligible(suspended))

	risky := candidate(3, func(c *domain.Candidate) {
		c.Profile.RiskScore = domain.RiskThreshold + 1
	})
	assert.False(t, Eligible(risky))

	atThreshold := candidate(4, func(c *domain.Candidate) {
		c.Profile.RiskScore = domain.RiskThreshold
	})
	assert.True(t, Eligible(atThreshold))

	outOfRange := candidate(5, func(c *domain.Candidate) {
		c.Signals.DistanceKm = c.Offering.CoverageRadiusKm + 1
	})
	assert.False(t, Eligible(outOfRange))
}

func TestRankNoEligibleTechnician(t *testing.T) {
	_, err := Rank(nil)
	require.ErrorIs(t, err, domain.ErrNoEligibleTechnician)

	suspended := candidate(1, func(c *domain.Candidate) {
		c.Profile.VerificationState = techdomain.VerificationSuspended
	})
	_, err = Rank([]domain.Candidate{suspended})
	require.ErrorIs(t, err, domain.ErrNoEligibleTechnician)
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	near := candidate(1, func(c *domain.Candidate) { c.Signals.DistanceKm = 1 })
	far := candidate(2, func(c *domain.Candidate) { c.Signals.DistanceKm = 9 })

	ranked, err := Rank([]domain.Candidate{far, near})
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, snowflake.ID(1), ranked[0].Candidate.Offering.TechnicianID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankPreferredComesFirst(t *testing.T) {
	// The preferred candidate is worse on every factor but still wins the
	// ordering.
	preferred := candidate(1, func(c *domain.Candidate) {
		c.Signals.DistanceKm = 8
		c.Signals.Preferred = true
		c.Signals.CompletedJobs = 2
		c.Signals.OnTimeJobs = 1
	})
	better := candidate(2, func(c *domain.Candidate) { c.Signals.DistanceKm = 1 })

	ranked, err := Rank([]domain.Candidate{better, preferred})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), ranked[0].Candidate.Offering.TechnicianID)
	assert.True(t, ranked[0].Factors.Preferred)
}

func TestScorePreferredBonusStaysWithinScale(t *testing.T) {
	weak := func(c *domain.Candidate) {
		c.Signals.DistanceKm = 8
		c.Signals.ActiveBookings = 4
		c.Signals.CompletedJobs = 2
		c.Signals.CancelledJobs = 2
		c.Signals.OnTimeJobs = 1
		c.Profile.Rating = 3
	}
	plain := candidate(1, weak)
	preferred := candidate(1, func(c *domain.Candidate) {
		weak(c)
		c.Signals.Preferred = true
	})

	base := Score(plain)
	boosted := Score(preferred)
	assert.InDelta(t, base.Composite+domain.PreferredBonus, boosted.Composite, 1e-9)

	// A perfect preferred candidate still caps at 100.
	perfect := candidate(2, func(c *domain.Candidate) {
		c.Signals.DistanceKm = 0
		c.Signals.Preferred = true
		c.Signals.ActiveBookings = 0
		c.Signals.CompletedJobs = 100
		c.Signals.CancelledJobs = 0
		c.Signals.OnTimeJobs = 100
		c.Profile.RiskScore = 0
		c.Profile.Rating = 5
		c.Offering.Experience = techdomain.TierExpert
	})
	assert.Equal(t, 100.0, Score(perfect).Composite)
}

func TestReason(t *testing.T) {
	top := domain.ScoredCandidate{Factors: domain.Factors{
		Preferred: true, Proximity: 95, Skill: 85, Completion: 95, SLA: 95,
	}}
	// At most three superlatives.
	assert.Equal(t, "trusted by this customer, closest available, highly skilled match", Reason(top))

	plain := domain.ScoredCandidate{Factors: domain.Factors{
		Proximity: 40, Skill: 50, Completion: 60, SLA: 60,
	}}
	assert.Equal(t, "best overall match across ranking factors", Reason(plain))

	single := domain.ScoredCandidate{Factors: domain.Factors{SLA: 95}}
	assert.Equal(t, "consistently on time", Reason(single))
}
