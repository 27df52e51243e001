package predictor

import (
	"encoding/json"
	"strings"
	"time"
)

// ─── Cycle State ────────────────────────────────────────────────────────────

// CycleState is the mutable per-(user, product) model. A nil CycleStartedAt
// means no active cycle: the product is considered out until the next
// purchase opens one.
type CycleState struct {
	CycleMeanDays float64
	CycleMadDays  float64

	CycleStartedAt *time.Time
	LastPurchaseAt *time.Time
	LastUpdateAt   time.Time
	LastFeedbackAt *time.Time
	EmptyAt        *time.Time

	LastPredDaysLeft *float64

	NStrongUpdates   int
	NTotalUpdates    int
	NCompletedCycles int
	CensoredCycles   int
	WasteEvents      int

	// Denormalized for cold start re-initialization.
	CategoryID *string
}

// cycleStateJSON is the persisted shape. Key names are stable; missing keys
// are backfilled with defaults and unknown keys are ignored on decode.
type cycleStateJSON struct {
	CycleMeanDays    *float64 `json:"cycle_mean_days"`
	CycleMadDays     *float64 `json:"cycle_mad_days"`
	CycleStartedAt   *string  `json:"cycle_started_at"`
	LastPurchaseAt   *string  `json:"last_purchase_at"`
	LastUpdateAt     *string  `json:"last_update_at"`
	LastFeedbackAt   *string  `json:"last_feedback_at"`
	EmptyAt          *string  `json:"empty_at"`
	LastPredDaysLeft *float64 `json:"last_pred_days_left"`
	NStrongUpdates   *int     `json:"n_strong_updates"`
	NTotalUpdates    *int     `json:"n_total_updates"`
	NCompletedCycles *int     `json:"n_completed_cycles"`
	CensoredCycles   *int     `json:"censored_cycles"`
	WasteEvents      *int     `json:"waste_events"`
	CategoryID       *string  `json:"category_id"`
}

// EncodeParams serializes the state as the stable params JSON document.
// Timestamps are ISO-8601 UTC strings.
func (s *CycleState) EncodeParams() ([]byte, error) {
	doc := cycleStateJSON{
		CycleMeanDays:    &s.CycleMeanDays,
		CycleMadDays:     &s.CycleMadDays,
		CycleStartedAt:   formatTimePtr(s.CycleStartedAt),
		LastPurchaseAt:   formatTimePtr(s.LastPurchaseAt),
		LastUpdateAt:     formatTimePtr(&s.LastUpdateAt),
		LastFeedbackAt:   formatTimePtr(s.LastFeedbackAt),
		EmptyAt:          formatTimePtr(s.EmptyAt),
		LastPredDaysLeft: s.LastPredDaysLeft,
		NStrongUpdates:   &s.NStrongUpdates,
		NTotalUpdates:    &s.NTotalUpdates,
		NCompletedCycles: &s.NCompletedCycles,
		CensoredCycles:   &s.CensoredCycles,
		WasteEvents:      &s.WasteEvents,
		CategoryID:       s.CategoryID,
	}
	return json.Marshal(doc)
}

// DecodeParams deserializes a params document. A missing mean or MAD defaults
// to the fallback prior, missing counters to zero, and a missing
// last_update_at to now. The error is non-nil when the document is not a
// JSON object of the params shape (not JSON, or a key of the wrong type).
func DecodeParams(raw []byte, now time.Time) (*CycleState, error) {
	var doc cycleStateJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	s := &CycleState{
		CycleMeanDays:    FallbackPrior.MeanDays,
		CycleMadDays:     FallbackPrior.MadDays,
		LastUpdateAt:     now,
		LastPredDaysLeft: doc.LastPredDaysLeft,
		CategoryID:       doc.CategoryID,
	}
	if doc.CycleMeanDays != nil {
		s.CycleMeanDays = *doc.CycleMeanDays
	}
	if doc.CycleMadDays != nil {
		s.CycleMadDays = *doc.CycleMadDays
	}
	s.CycleStartedAt = parseTimePtr(doc.CycleStartedAt)
	s.LastPurchaseAt = parseTimePtr(doc.LastPurchaseAt)
	s.LastFeedbackAt = parseTimePtr(doc.LastFeedbackAt)
	s.EmptyAt = parseTimePtr(doc.EmptyAt)
	if t := parseTimePtr(doc.LastUpdateAt); t != nil {
		s.LastUpdateAt = *t
	}
	if doc.NStrongUpdates != nil {
		s.NStrongUpdates = *doc.NStrongUpdates
	}
	if doc.NTotalUpdates != nil {
		s.NTotalUpdates = *doc.NTotalUpdates
	}
	if doc.NCompletedCycles != nil {
		s.NCompletedCycles = *doc.NCompletedCycles
	}
	if doc.CensoredCycles != nil {
		s.CensoredCycles = *doc.CensoredCycles
	}
	if doc.WasteEvents != nil {
		s.WasteEvents = *doc.WasteEvents
	}
	return s, nil
}

// Clone returns a deep copy of the state.
func (s *CycleState) Clone() *CycleState {
	out := *s
	out.CycleStartedAt = copyTimePtr(s.CycleStartedAt)
	out.LastPurchaseAt = copyTimePtr(s.LastPurchaseAt)
	out.LastFeedbackAt = copyTimePtr(s.LastFeedbackAt)
	out.EmptyAt = copyTimePtr(s.EmptyAt)
	if s.LastPredDaysLeft != nil {
		v := *s.LastPredDaysLeft
		out.LastPredDaysLeft = &v
	}
	if s.CategoryID != nil {
		v := *s.CategoryID
		out.CategoryID = &v
	}
	return &out
}

// ─── Timestamp Handling ─────────────────────────────────────────────────────
// Storage layers hand back both "2024-03-01T10:00:00.123456+00:00" and
// "2024-03-01T10:00:00Z", with any fractional-second width. ParseTimestamp
// accepts all of them plus the naive "YYYY-MM-DD HH:MM:SS" form, which is
// taken as UTC.

// ParseTimestamp parses an ISO-8601-ish UTC timestamp string.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	// Naive timestamps: normalize the separator and assume UTC.
	norm := strings.Replace(s, " ", "T", 1)
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", norm); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", norm); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := ParseTimestamp(*s)
	if !ok {
		return nil
	}
	return &t
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
