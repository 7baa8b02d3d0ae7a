// Package ranking scores dispatch candidates. Everything here is a pure
// function over the signal bundles; nothing reads storage or the clock.
package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/fixlane/fixlane/internal/dispatch/domain"
	techdomain "github.com/fixlane/fixlane/internal/technician/domain"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// ProximityScore decays linearly from 100 at 0 km to 0 at the candidate's
// declared coverage radius.
func ProximityScore(distanceKm, radiusKm float64) float64 {
	if radiusKm <= 0 {
		return 0
	}
	score := 100 * (1 - distanceKm/radiusKm)
	return clamp(score, 0, 100)
}

// SkillScore starts at 50 and adds the experience-tier bonus, a completed-jobs
// bonus capped at 20, and a rating-scaled bonus.
func SkillScore(tier techdomain.ExperienceTier, completedJobs int, rating float64) float64 {
	score := 50.0
	score += tier.SkillBonus()
	score += math.Min(20, float64(completedJobs))
	score += clamp(rating, 0, 5) * 2
	return clamp(score, 0, 100)
}

// CompletionScore is completed/(completed+cancelled) on a 0-100 scale,
// neutral 50 with no history.
func CompletionScore(completed, cancelled int) float64 {
	total := completed + cancelled
	if total == 0 {
		return 50
	}
	return 100 * float64(completed) / float64(total)
}

// SLAScore is on-time starts over total completed jobs, neutral 50 with no
// history.
func SLAScore(onTime, completed int) float64 {
	if completed == 0 {
		return 50
	}
	return clamp(100*float64(onTime)/float64(completed), 0, 100)
}

// WorkloadScore decays linearly from 100 at zero active jobs to 0 at
// capacity.
func WorkloadScore(active, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return clamp(100*(1-float64(active)/float64(capacity)), 0, 100)
}

// Score computes the full factor set for one candidate.
func Score(c domain.Candidate) domain.Factors {
	f := domain.Factors{
		Proximity:  ProximityScore(c.Signals.DistanceKm, c.Offering.CoverageRadiusKm),
		Skill:      SkillScore(c.Offering.Experience, c.Signals.CompletedJobs, c.Profile.Rating),
		Risk:       clamp(100-c.Profile.RiskScore, 0, 100),
		Completion: CompletionScore(c.Signals.CompletedJobs, c.Signals.CancelledJobs),
		SLA:        SLAScore(c.Signals.OnTimeJobs, c.Signals.CompletedJobs),
		Workload:   WorkloadScore(c.Signals.ActiveBookings, domain.WorkloadCapacity),
		Preferred:  c.Signals.Preferred,
	}

	composite := f.Proximity*domain.WeightProximity +
		f.Skill*domain.WeightSkill +
		f.Risk*domain.WeightRisk +
		f.Completion*domain.WeightCompletion +
		f.SLA*domain.WeightSLA +
		f.Workload*domain.WeightWorkload
	composite = math.Min(composite, 100)
	if f.Preferred {
		// Ordering already puts preferred candidates first; the bonus only
		// separates them within the group, so the composite stays on the
		// 0-100 scale.
		composite = math.Min(composite+domain.PreferredBonus, 100)
	}
	f.Composite = composite
	return f
}

// Eligible applies the hard exclusions: suspended technicians, risk above the
// threshold, and candidates outside their own coverage radius.
func Eligible(c domain.Candidate) bool {
	if c.Profile.VerificationState == techdomain.VerificationSuspended {
		return false
	}
	if c.Profile.RiskScore > domain.RiskThreshold {
		return false
	}
	if c.Signals.DistanceKm > c.Offering.CoverageRadiusKm {
		return false
	}
	return true
}

// Rank filters, scores and orders candidates: preferred-relationship
// candidates first as a stable group, then descending composite score.
// An empty result after exclusion returns ErrNoEligibleTechnician.
func Rank(candidates []domain.Candidate) ([]domain.ScoredCandidate, error) {
	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !Eligible(c) {
			continue
		}
		f := Score(c)
		scored = append(scored, domain.ScoredCandidate{
			Candidate: c,
			Factors:   f,
			Score:     f.Composite,
		})
	}
	if len(scored) == 0 {
		return nil, domain.ErrNoEligibleTechnician
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Factors.Preferred != scored[j].Factors.Preferred {
			return scored[i].Factors.Preferred
		}
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Reason builds the human-readable justification for the top choice from up
// to three qualifying superlatives.
func Reason(top domain.ScoredCandidate) string {
	var parts []string
	if top.Factors.Preferred {
		parts = append(parts, "trusted by this customer")
	}
	if top.Factors.Proximity >= 80 {
		parts = append(parts, "closest available")
	}
	if top.Factors.Skill >= 80 {
		parts = append(parts, "highly skilled match")
	}
	if top.Factors.Completion >= 90 {
		parts = append(parts, "excellent completion rate")
	}
	if top.Factors.SLA >= 90 {
		parts = append(parts, "consistently on time")
	}

	if len(parts) == 0 {
		return "best overall match across ranking factors"
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}

	reason := parts[0]
	for _, part := range parts[1:] {
		reason = fmt.Sprintf("%s, %s", reason, part)
	}
	return reason
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
