package predictor

import (
	"strings"
	"time"

	"github.com/pantrylab/pantryd/internal/domain"
)

// ─── Events ─────────────────────────────────────────────────────────────────

// PurchaseEvent opens a new consumption cycle.
type PurchaseEvent struct {
	TS     time.Time
	Source domain.InventorySource
}

// FeedbackEvent carries a user feedback signal. Note is the free-text reason
// attached to the log row; only WASTED inspects it.
type FeedbackEvent struct {
	TS     time.Time
	Kind   domain.FeedbackKind
	Note   string
	Source domain.InventorySource
}

// ─── Initialization ─────────────────────────────────────────────────────────

// InitFromCategory seeds a fresh state from the category prior. The mean is
// clamped to the configured bounds and the MAD floored at 0.1. No cycle is
// active yet, so the product predicts EMPTY until its first purchase.
func InitFromCategory(categoryID *string, cfg Config, now time.Time) *CycleState {
	prior := cfg.Prior(categoryID)
	s := &CycleState{
		CycleMeanDays: clamp(prior.MeanDays, cfg.MinCycleDays, cfg.MaxCycleDays),
		CycleMadDays:  max(prior.MadDays, minMadDays),
		LastUpdateAt:  now,
	}
	if categoryID != nil {
		v := *categoryID
		s.CategoryID = &v
	}
	return s
}

// ─── Purchase ───────────────────────────────────────────────────────────────

// ApplyPurchase opens a new cycle, first settling the previous one:
//
//   - an EMPTY mark inside an active cycle closes it with the observed
//     empty-to-start span;
//   - a purchase while the shelf reads LOW closes the cycle at the purchase
//     instant (the user clearly restocked just in time);
//   - a purchase while FULL or MEDIUM censors the cycle: it says nothing
//     about consumption speed and must not move the mean.
//
// current is the coarse inventory state captured BEFORE the caller mutated
// the inventory row for this purchase.
func (s *CycleState) ApplyPurchase(ev PurchaseEvent, cfg Config, current domain.InventoryState) {
	switch {
	case s.EmptyAt != nil && s.CycleStartedAt != nil:
		observed := clamp(daysBetween(*s.EmptyAt, *s.CycleStartedAt), cfg.MinCycleDays, cfg.MaxCycleDays)
		s.recordCompletedCycle(observed, cfg)

	case s.EmptyAt == nil && current == domain.StateLow && s.CycleStartedAt != nil:
		observed := clamp(daysBetween(ev.TS, *s.CycleStartedAt), cfg.MinCycleDays, cfg.MaxCycleDays)
		s.recordCompletedCycle(observed, cfg)

	case s.CycleStartedAt != nil && (current == domain.StateFull || current == domain.StateMedium):
		s.CensoredCycles++
	}

	ts := ev.TS
	s.CycleStartedAt = &ts
	s.LastPurchaseAt = &ts
	s.LastUpdateAt = ts
	s.EmptyAt = nil
}

// recordCompletedCycle folds one observed cycle length into the cumulative
// average of mean and MAD. k is the number of cycles completed before this
// one; k = 0 replaces the prior outright.
func (s *CycleState) recordCompletedCycle(observed float64, cfg Config) {
	k := float64(s.NCompletedCycles)
	oldMean := s.CycleMeanDays
	dev := abs(observed - oldMean)

	var newMean, newMad float64
	if s.NCompletedCycles == 0 {
		newMean = observed
		newMad = max(dev, minMadDays)
	} else {
		newMean = (oldMean*k + observed) / (k + 1)
		newMad = (s.CycleMadDays*k + dev) / (k + 1)
	}

	s.CycleMeanDays = clamp(newMean, cfg.MinCycleDays, cfg.MaxCycleDays)
	s.CycleMadDays = clamp(newMad, minMadDays, cfg.MaxCycleDays)
	s.NCompletedCycles++
	s.NStrongUpdates++
}

// ─── Feedback ───────────────────────────────────────────────────────────────

// ApplyFeedback dispatches one feedback signal onto the state.
//
// EMPTY only marks the instant the product ran out; the cycle is measured at
// the next purchase. MORE/LESS deliberately do not touch the mean here: the
// immediate days_left shaping happens at the API layer and the mean is only
// revised from observed cycles.
func (s *CycleState) ApplyFeedback(ev FeedbackEvent, cfg Config) {
	switch ev.Kind {
	case domain.FeedbackEmpty:
		if s.EmptyAt == nil {
			ts := ev.TS
			s.EmptyAt = &ts
		}

	case domain.FeedbackWasted:
		s.WasteEvents++
		if wasteReasonIsRanOut(ev.Note) && s.CycleStartedAt != nil {
			// The product actually ran out before being tossed: fold the
			// span in as a weak observation.
			observed := clamp(daysBetween(ev.TS, *s.CycleStartedAt), cfg.MinCycleDays, cfg.MaxCycleDays)
			a := 0.2 * cfg.AlphaStrong
			s.CycleMeanDays = clamp((1-a)*s.CycleMeanDays+a*observed, cfg.MinCycleDays, cfg.MaxCycleDays)
		} else {
			// Tossed for taste, expiry, or unknown reasons: not a real
			// cycle. Just get less sure.
			s.CycleMadDays = clamp(s.CycleMadDays*1.03, minMadDays, cfg.MaxCycleDays)
		}
		s.CycleStartedAt = nil

	case domain.FeedbackExact:
		s.CycleMadDays = clamp((1-cfg.AlphaConfirm)*s.CycleMadDays, minMadDays, cfg.MaxCycleDays)

	case domain.FeedbackMore, domain.FeedbackLess:
		ts := ev.TS
		s.LastFeedbackAt = &ts
	}

	s.LastUpdateAt = ev.TS
	s.NTotalUpdates++
}

// wasteReasonIsRanOut reports whether a waste note says the product was
// finished rather than discarded. English and Hebrew tokens accepted.
func wasteReasonIsRanOut(note string) bool {
	low := strings.ToLower(note)
	for _, token := range []string{"ran out", "empty", "finished", "נגמר"} {
		if strings.Contains(low, token) {
			return true
		}
	}
	return false
}
