package domain

import (
	"context"
	"time"
)

// ─── Repository Boundary ────────────────────────────────────────────────────
// The store is the only surface the predictor pipeline requires.
// Infrastructure implements it; the dispatcher, refresh engine, schedulers,
// and API depend on it. All timestamps cross this boundary in UTC.

// Repository is the abstract pantry store.
type Repository interface {
	// ActiveProfile returns the user's active predictor profile, lazily
	// creating a default profile seeded with system category priors on
	// first read.
	ActiveProfile(ctx context.Context, userID string) (*Profile, error)

	// UserInventoryProducts lists every product currently in the user's
	// inventory with its denormalized category.
	UserInventoryProducts(ctx context.Context, userID string) ([]ProductRef, error)

	// UsersWithInventory lists every user that owns at least one inventory
	// row. Used by the daily background jobs.
	UsersWithInventory(ctx context.Context) ([]string, error)

	// PredictorState returns the persisted per-product state, or nil when
	// the pair has never been predicted.
	PredictorState(ctx context.Context, userID, productID string) (*PredictorStateRow, error)

	// UpsertPredictorState writes the per-product state row.
	UpsertPredictorState(ctx context.Context, userID, productID, profileID string, paramsJSON []byte, confidence float64, updatedAt time.Time) error

	// UpsertInventoryEstimate writes days_left, coarse state, and confidence
	// onto the inventory row. An empty displayedName keeps the stored name.
	UpsertInventoryEstimate(ctx context.Context, userID, productID string, daysLeft float64, state InventoryState, confidence float64, source InventorySource, displayedName string) error

	// InventoryItem returns the current inventory row, or ErrItemNotFound.
	InventoryItem(ctx context.Context, userID, productID string) (*InventoryRow, error)

	// CurrentInventoryState returns the coarse state of the inventory row,
	// or StateUnknown when the row is absent.
	CurrentInventoryState(ctx context.Context, userID, productID string) (InventoryState, error)

	// InsertInventoryLog appends a log row, minting its id, and returns it.
	InsertInventoryLog(ctx context.Context, entry *InventoryLogEntry) (string, error)

	// InventoryLogRow returns one log row, or ErrLogRowNotFound.
	InventoryLogRow(ctx context.Context, logID string) (*InventoryLogEntry, error)

	// FirstLogOccurredAt returns the earliest occurred_at for the pair,
	// or nil when the pair has no log rows. Used by the weekly job.
	FirstLogOccurredAt(ctx context.Context, userID, productID string) (*time.Time, error)

	// InsertForecast appends a forecast snapshot.
	InsertForecast(ctx context.Context, userID, productID string, f Forecast, triggerLogID string) error

	// LatestForecast returns the most recent snapshot, or nil when the pair
	// has never been forecast.
	LatestForecast(ctx context.Context, userID, productID string) (*ForecastSnapshot, error)

	// ActiveHabitEffects returns the effects of every habit that is ACTIVE
	// and, if date-bounded, in range at now.
	ActiveHabitEffects(ctx context.Context, userID string, now time.Time) ([]HabitEffects, error)

	// Habit CRUD for the habit surface.
	InsertHabit(ctx context.Context, h *Habit) (string, error)
	Habit(ctx context.Context, userID, habitID string) (*Habit, error)
	ListHabits(ctx context.Context, userID string) ([]Habit, error)
	DeleteHabit(ctx context.Context, userID, habitID string) error
}
