// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of the service: enums matching the database
// enums, the inventory entities, and the repository boundary.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ─── Inventory Enums ────────────────────────────────────────────────────────

// InventoryState is the coarse stock level shown in the UI.
type InventoryState string

const (
	StateEmpty   InventoryState = "EMPTY"
	StateLow     InventoryState = "LOW"
	StateMedium  InventoryState = "MEDIUM"
	StateFull    InventoryState = "FULL"
	StateUnknown InventoryState = "UNKNOWN"
)

// Rank orders the known states EMPTY < LOW < MEDIUM < FULL.
// UNKNOWN ranks like MEDIUM so feedback stepping has a sane anchor.
func (s InventoryState) Rank() int {
	switch s {
	case StateEmpty:
		return 0
	case StateLow:
		return 1
	case StateMedium:
		return 2
	case StateFull:
		return 3
	default:
		return 2
	}
}

// InventorySource records who last touched an inventory row.
type InventorySource string

const (
	SourceReceipt      InventorySource = "RECEIPT"
	SourceShoppingList InventorySource = "SHOPPING_LIST"
	SourceManual       InventorySource = "MANUAL"
	SourceSystem       InventorySource = "SYSTEM"
)

// InventoryAction classifies an inventory log row.
type InventoryAction string

const (
	ActionPurchase   InventoryAction = "PURCHASE"
	ActionRepurchase InventoryAction = "REPURCHASE"
	ActionAdjust     InventoryAction = "ADJUST"
	ActionTrash      InventoryAction = "TRASH"
	ActionEmpty      InventoryAction = "EMPTY"
	ActionReset      InventoryAction = "RESET"
)

// FeedbackKind is the closed set of user feedback signals the predictor
// understands. EMPTY ("נגמר") and WASTED ("נזרק") are strong signals;
// MORE/LESS/EXACT shape the estimate without closing a cycle.
type FeedbackKind string

const (
	FeedbackMore   FeedbackKind = "MORE"
	FeedbackLess   FeedbackKind = "LESS"
	FeedbackExact  FeedbackKind = "EXACT"
	FeedbackEmpty  FeedbackKind = "EMPTY"
	FeedbackWasted FeedbackKind = "WASTED"
)

// HabitStatus is the lifecycle state of a habit.
type HabitStatus string

const (
	HabitActive   HabitStatus = "ACTIVE"
	HabitInactive HabitStatus = "INACTIVE"
	HabitExpired  HabitStatus = "EXPIRED"
)

// ─── Entities ───────────────────────────────────────────────────────────────

// ProductRef identifies a product in a user's inventory along with its
// denormalized category (nil when the product has no category).
type ProductRef struct {
	ProductID  string
	CategoryID *string
}

// InventoryLogEntry is one append-only inventory event. The log is the
// ground truth: predictor state is derived from it plus scheduler ticks.
type InventoryLogEntry struct {
	LogID              string          `json:"log_id"`
	UserID             string          `json:"user_id"`
	ProductID          string          `json:"product_id"`
	Action             InventoryAction `json:"action"`
	DeltaState         *InventoryState `json:"delta_state,omitempty"`
	ActionConfidence   float64         `json:"action_confidence"`
	OccurredAt         time.Time       `json:"occurred_at"`
	Source             InventorySource `json:"source"`
	Note               string          `json:"note,omitempty"`
	ReceiptItemID      *string         `json:"receipt_item_id,omitempty"`
	ShoppingListItemID *string         `json:"shopping_list_item_id,omitempty"`
}

// InventoryRow is the current inventory line for a (user, product) pair.
// EstimatedQty is semantically "days of supply left" and QtyUnit is always
// "days".
type InventoryRow struct {
	UserID        string          `json:"user_id"`
	ProductID     string          `json:"product_id"`
	State         InventoryState  `json:"state"`
	EstimatedQty  *float64        `json:"estimated_qty,omitempty"`
	QtyUnit       string          `json:"qty_unit"`
	Confidence    float64         `json:"confidence"`
	LastSource    InventorySource `json:"last_source"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	DisplayedName string          `json:"displayed_name,omitempty"`
}

// Forecast is a point prediction for one product.
type Forecast struct {
	ExpectedDaysLeft float64        `json:"expected_days_left"`
	PredictedState   InventoryState `json:"predicted_state"`
	Confidence       float64        `json:"confidence"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// ForecastSnapshot is a persisted Forecast linked to the log row that
// triggered it (empty TriggerLogID for refresh/scheduler snapshots).
type ForecastSnapshot struct {
	ForecastID   string   `json:"forecast_id"`
	UserID       string   `json:"user_id"`
	ProductID    string   `json:"product_id"`
	Forecast     Forecast `json:"forecast"`
	TriggerLogID string   `json:"trigger_log_id,omitempty"`
}

// Profile is a user's active predictor profile. Config is the raw JSON
// config object; the predictor package coerces it into typed form.
type Profile struct {
	ProfileID string
	UserID    string
	Method    string
	Config    map[string]any
}

// PredictorStateRow is the persisted per-product predictor state as the
// store returns it: opaque params plus bookkeeping columns.
type PredictorStateRow struct {
	ParamsJSON []byte
	Confidence float64
	UpdatedAt  time.Time
	ProfileID  string
}

// Habit is a user habit whose effects scale predicted consumption.
type Habit struct {
	HabitID   string       `json:"habit_id"`
	UserID    string       `json:"user_id"`
	Type      string       `json:"type"`
	Status    HabitStatus  `json:"status"`
	Name      string       `json:"name,omitempty"`
	Effects   HabitEffects `json:"effects"`
	StartDate *time.Time   `json:"start_date,omitempty"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ActiveAt reports whether the habit applies at the given instant.
func (h Habit) ActiveAt(now time.Time) bool {
	if h.Status != HabitActive {
		return false
	}
	if h.StartDate != nil && now.Before(*h.StartDate) {
		return false
	}
	if h.EndDate != nil && now.After(*h.EndDate) {
		return false
	}
	return true
}

// ─── Habit Effects ──────────────────────────────────────────────────────────

// HabitEffects is the effects payload of one habit. All fields are optional;
// a missing field contributes multiplier 1.0.
type HabitEffects struct {
	GlobalMultiplier    *float64           `json:"global_multiplier,omitempty"`
	ProductMultipliers  map[string]float64 `json:"product_multipliers,omitempty"`
	CategoryMultipliers map[string]float64 `json:"category_multipliers,omitempty"`
}

// ParseHabitEffects decodes an effects JSON document, tolerating unknown
// keys and non-object payloads (which yield the identity effects).
func ParseHabitEffects(raw []byte) HabitEffects {
	var e HabitEffects
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return e
	}
	_ = json.Unmarshal(raw, &e)
	return e
}

// IsZero reports whether the effects carry no multipliers at all.
func (e HabitEffects) IsZero() bool {
	return e.GlobalMultiplier == nil && len(e.ProductMultipliers) == 0 && len(e.CategoryMultipliers) == 0
}

// MultiplierFor returns this habit's contribution for one product.
// Multiplier > 1 means faster consumption.
func (e HabitEffects) MultiplierFor(productID string, categoryID *string) float64 {
	mult := 1.0
	if e.GlobalMultiplier != nil {
		mult *= *e.GlobalMultiplier
	}
	if m, ok := e.ProductMultipliers[productID]; ok {
		mult *= m
	}
	if categoryID != nil {
		if m, ok := e.CategoryMultipliers[*categoryID]; ok {
			mult *= m
		}
	}
	return mult
}

// Affects reports whether the effects touch the given product at all:
// directly by id, through its category, or through a global multiplier.
func (e HabitEffects) Affects(productID string, categoryID *string) bool {
	if e.GlobalMultiplier != nil {
		return true
	}
	if _, ok := e.ProductMultipliers[productID]; ok {
		return true
	}
	if categoryID != nil {
		if _, ok := e.CategoryMultipliers[*categoryID]; ok {
			return true
		}
	}
	return false
}
