package predictor

import (
	"math"
	"time"

	"github.com/pantrylab/pantryd/internal/domain"
)

const (
	// minMadDays is the floor on the MAD estimate.
	minMadDays = 0.1

	// epsilon guards divisions by the mean and the habit multiplier.
	epsilon = 1e-6

	// emptyRatio: below this fraction of the mean the shelf is called EMPTY
	// even when a hair of supply remains.
	emptyRatio = 0.02
)

// ─── Prediction ─────────────────────────────────────────────────────────────

// DeriveState maps a days_left estimate onto the coarse stock level.
// Monotonically non-decreasing in daysLeft for a fixed mean.
func DeriveState(daysLeft, meanDays float64, cfg Config) domain.InventoryState {
	if daysLeft <= 0 {
		return domain.StateEmpty
	}
	ratio := daysLeft / max(meanDays, epsilon)
	switch {
	case ratio < emptyRatio:
		return domain.StateEmpty
	case ratio >= cfg.FullRatio:
		return domain.StateFull
	case ratio >= cfg.MediumRatio:
		return domain.StateMedium
	default:
		return domain.StateLow
	}
}

// ComputeDaysLeft estimates remaining days of supply.
//
// When inventoryDaysLeft is non-nil it is the cached estimate the habits
// should be applied to (the refresh path); otherwise the estimate is derived
// from the cycle mean and the elapsed time since the opening purchase.
// multiplier > 1 means faster consumption, so it divides.
func (s *CycleState) ComputeDaysLeft(now time.Time, multiplier float64, cfg Config, inventoryDaysLeft *float64) float64 {
	mult := max(multiplier, epsilon)
	if inventoryDaysLeft != nil {
		return max(*inventoryDaysLeft/mult, 0)
	}
	if s.CycleStartedAt == nil {
		return 0
	}
	base := max(s.CycleMeanDays-daysBetween(now, *s.CycleStartedAt), 0)
	return max(base/mult, 0)
}

// ComputeConfidence scores the forecast on [0, 1] from three factors:
// evidence (how many cycles we have actually observed), stability (MAD
// relative to the mean), and recency (time since the last update).
func (s *CycleState) ComputeConfidence(now time.Time, cfg Config) float64 {
	k := s.NCompletedCycles
	if k == 0 {
		k = s.NStrongUpdates
	}
	evidence := 0.3
	if k > 0 {
		evidence = sigmoid(float64(k) / 2.0)
	}

	stability := clamp(1.0-s.CycleMadDays/max(s.CycleMeanDays, 1.0), 0.2, 1.0)

	daysSince := daysBetween(now, s.LastUpdateAt)
	recency := max(math.Exp(-daysSince/max(cfg.RecencyTauDays, epsilon)), 0.1)

	return clamp(0.2+0.8*evidence*stability*recency, 0.0, 1.0)
}

// Predict produces a full forecast for the state at now.
func (s *CycleState) Predict(now time.Time, multiplier float64, cfg Config, inventoryDaysLeft *float64) domain.Forecast {
	daysLeft := s.ComputeDaysLeft(now, multiplier, cfg, inventoryDaysLeft)
	return domain.Forecast{
		ExpectedDaysLeft: daysLeft,
		PredictedState:   DeriveState(daysLeft, s.CycleMeanDays, cfg),
		Confidence:       s.ComputeConfidence(now, cfg),
		GeneratedAt:      now,
	}
}

// StampForecast records the forecast's days_left so later MORE/LESS shaping
// and habit refreshes start from the last published number.
func (s *CycleState) StampForecast(f domain.Forecast) {
	v := f.ExpectedDaysLeft
	s.LastPredDaysLeft = &v
}

// ─── Pure Helpers ───────────────────────────────────────────────────────────

// sigmoid is the numerically stable logistic function.
func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1 / (1 + z)
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
