package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "pantry.db"), 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProduct(t *testing.T, db *DB, userID, productID string, categoryID *string) {
	t.Helper()
	ctx := context.Background()
	if err := db.UpsertProduct(ctx, productID, "Product "+productID, categoryID); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	if err := db.EnsureInventoryRow(ctx, userID, productID); err != nil {
		t.Fatalf("ensure inventory: %v", err)
	}
}

func TestActiveProfileLazyCreation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCategory(ctx, "cat-dairy", "Dairy & Eggs"); err != nil {
		t.Fatalf("upsert category: %v", err)
	}

	p, err := db.ActiveProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if p.Method != "EMA" {
		t.Errorf("method = %q, want EMA", p.Method)
	}

	// The seeded config carries the dairy prior mapped onto the stored id.
	cfg := predictor.ConfigFromJSON(p.Config)
	prior, ok := cfg.CategoryPriors["cat-dairy"]
	if !ok {
		t.Fatal("default profile missing dairy prior")
	}
	if prior.MeanDays != 5.0 || prior.MadDays != 2.0 {
		t.Errorf("dairy prior = (%v, %v), want (5, 2)", prior.MeanDays, prior.MadDays)
	}

	// A second read returns the same profile, not a new one.
	p2, err := db.ActiveProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if p2.ProfileID != p.ProfileID {
		t.Error("lazy creation should be idempotent")
	}
}

func TestPredictorStateRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.PredictorState(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil state before any write")
	}

	cfg := predictor.DefaultConfig()
	state := predictor.InitFromCategory(nil, cfg, t0)
	state.ApplyPurchase(predictor.PurchaseEvent{TS: t0, Source: domain.SourceManual}, cfg, domain.StateUnknown)
	params, _ := state.EncodeParams()

	if err := db.UpsertPredictorState(ctx, "u1", "p1", "prof-1", params, 0.42, t0); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err = db.PredictorState(ctx, "u1", "p1")
	if err != nil || got == nil {
		t.Fatalf("read back: %v", err)
	}
	if got.ProfileID != "prof-1" || math.Abs(got.Confidence-0.42) > 1e-9 {
		t.Errorf("row = %+v", got)
	}
	decoded, err := predictor.DecodeParams(got.ParamsJSON, t0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.CycleStartedAt == nil || !decoded.CycleStartedAt.Equal(t0) {
		t.Error("cycle_started_at did not survive storage")
	}

	// Upsert is last-writer-wins on the same pair.
	if err := db.UpsertPredictorState(ctx, "u1", "p1", "prof-2", params, 0.9, t0.Add(time.Hour)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, _ = db.PredictorState(ctx, "u1", "p1")
	if got.ProfileID != "prof-2" || got.Confidence != 0.9 {
		t.Error("upsert did not overwrite")
	}
}

func TestInventoryEstimateUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedProduct(t, db, "u1", "p1", nil)

	if err := db.UpsertInventoryEstimate(ctx, "u1", "p1", 4.5, domain.StateMedium, 0.7, domain.SourceSystem, "Milk 3%"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	row, err := db.InventoryItem(ctx, "u1", "p1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.State != domain.StateMedium || row.EstimatedQty == nil || *row.EstimatedQty != 4.5 {
		t.Errorf("row = %+v", row)
	}
	if row.QtyUnit != "days" {
		t.Errorf("qty_unit = %q, want days", row.QtyUnit)
	}
	if row.DisplayedName != "Milk 3%" {
		t.Errorf("displayed_name = %q", row.DisplayedName)
	}

	// An estimate without a name keeps the stored one.
	if err := db.UpsertInventoryEstimate(ctx, "u1", "p1", 3.5, domain.StateLow, 0.6, domain.SourceSystem, ""); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	row, _ = db.InventoryItem(ctx, "u1", "p1")
	if row.DisplayedName != "Milk 3%" {
		t.Errorf("displayed_name lost on estimate update: %q", row.DisplayedName)
	}

	state, err := db.CurrentInventoryState(ctx, "u1", "p1")
	if err != nil || state != domain.StateLow {
		t.Errorf("current state = %s, %v", state, err)
	}
	state, err = db.CurrentInventoryState(ctx, "u1", "nope")
	if err != nil || state != domain.StateUnknown {
		t.Errorf("absent row state = %s, want UNKNOWN", state)
	}
}

func TestInventoryLogRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	delta := domain.StateEmpty
	id, err := db.InsertInventoryLog(ctx, &domain.InventoryLogEntry{
		UserID:           "u1",
		ProductID:        "p1",
		Action:           domain.ActionTrash,
		DeltaState:       &delta,
		ActionConfidence: 1.0,
		OccurredAt:       t0,
		Source:           domain.SourceManual,
		Note:             "WASTED: taste bad",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	row, err := db.InventoryLogRow(ctx, id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if row.Action != domain.ActionTrash || row.Note != "WASTED: taste bad" {
		t.Errorf("row = %+v", row)
	}
	if row.DeltaState == nil || *row.DeltaState != domain.StateEmpty {
		t.Error("delta_state did not round-trip")
	}
	if !row.OccurredAt.Equal(t0) {
		t.Errorf("occurred_at = %v, want %v", row.OccurredAt, t0)
	}

	if _, err := db.InventoryLogRow(ctx, "missing"); err != domain.ErrLogRowNotFound {
		t.Errorf("err = %v, want ErrLogRowNotFound", err)
	}
}

func TestFirstLogOccurredAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.FirstLogOccurredAt(ctx, "u1", "p1")
	if err != nil || got != nil {
		t.Fatalf("expected nil for no rows, got %v, %v", got, err)
	}

	for _, at := range []time.Time{t0.Add(48 * time.Hour), t0, t0.Add(24 * time.Hour)} {
		_, err := db.InsertInventoryLog(ctx, &domain.InventoryLogEntry{
			UserID: "u1", ProductID: "p1", Action: domain.ActionPurchase,
			OccurredAt: at, Source: domain.SourceManual,
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err = db.FirstLogOccurredAt(ctx, "u1", "p1")
	if err != nil || got == nil {
		t.Fatalf("lookup: %v", err)
	}
	if !got.Equal(t0) {
		t.Errorf("earliest = %v, want %v", got, t0)
	}
}

func TestForecastSnapshots(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	got, err := db.LatestForecast(ctx, "u1", "p1")
	if err != nil || got != nil {
		t.Fatalf("expected nil before snapshots, got %v, %v", got, err)
	}

	for i, f := range []domain.Forecast{
		{ExpectedDaysLeft: 5, PredictedState: domain.StateFull, Confidence: 0.5, GeneratedAt: t0},
		{ExpectedDaysLeft: 3, PredictedState: domain.StateMedium, Confidence: 0.6, GeneratedAt: t0.Add(time.Hour)},
	} {
		trigger := ""
		if i == 1 {
			trigger = "log-9"
		}
		if err := db.InsertForecast(ctx, "u1", "p1", f, trigger); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err = db.LatestForecast(ctx, "u1", "p1")
	if err != nil || got == nil {
		t.Fatalf("read: %v", err)
	}
	if got.Forecast.ExpectedDaysLeft != 3 || got.Forecast.PredictedState != domain.StateMedium {
		t.Errorf("latest = %+v", got.Forecast)
	}
	if got.TriggerLogID != "log-9" {
		t.Errorf("trigger = %q, want log-9", got.TriggerLogID)
	}
}

func TestActiveHabitEffects(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	g := 1.2

	mk := func(status domain.HabitStatus, start, end *time.Time) {
		t.Helper()
		_, err := db.InsertHabit(ctx, &domain.Habit{
			UserID:    "u1",
			Type:      "DIET",
			Status:    status,
			Effects:   domain.HabitEffects{GlobalMultiplier: &g},
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			t.Fatalf("insert habit: %v", err)
		}
	}

	past := t0.Add(-48 * time.Hour)
	future := t0.Add(48 * time.Hour)
	mk(domain.HabitActive, nil, nil)       // always on
	mk(domain.HabitActive, &past, &future) // in range
	mk(domain.HabitActive, &future, nil)   // not started yet
	mk(domain.HabitInactive, nil, nil)     // wrong status

	effects, err := db.ActiveHabitEffects(ctx, "u1", t0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(effects) != 2 {
		t.Fatalf("active effects = %d, want 2", len(effects))
	}
	for _, e := range effects {
		if e.GlobalMultiplier == nil || *e.GlobalMultiplier != 1.2 {
			t.Errorf("effects = %+v", e)
		}
	}
}

func TestHabitCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.InsertHabit(ctx, &domain.Habit{
		UserID: "u1",
		Type:   "HOUSEHOLD",
		Status: domain.HabitActive,
		Name:   "guests over summer",
		Effects: domain.HabitEffects{
			ProductMultipliers: map[string]float64{"p1": 2.0},
		},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	h, err := db.Habit(ctx, "u1", id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.Name != "guests over summer" || h.Effects.ProductMultipliers["p1"] != 2.0 {
		t.Errorf("habit = %+v", h)
	}

	// Habits are scoped to their owner.
	if _, err := db.Habit(ctx, "someone-else", id); err != domain.ErrHabitNotFound {
		t.Errorf("cross-user read err = %v, want ErrHabitNotFound", err)
	}

	list, err := db.ListHabits(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}

	if err := db.DeleteHabit(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := db.DeleteHabit(ctx, "u1", id); err != domain.ErrHabitNotFound {
		t.Errorf("double delete err = %v, want ErrHabitNotFound", err)
	}
}

func TestUserInventoryProductsAndUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertCategory(ctx, "cat-1", "Beverages"); err != nil {
		t.Fatalf("category: %v", err)
	}
	cat := "cat-1"
	seedProduct(t, db, "u1", "p1", &cat)
	seedProduct(t, db, "u1", "p2", nil)
	seedProduct(t, db, "u2", "p1", &cat)

	products, err := db.UserInventoryProducts(ctx, "u1")
	if err != nil {
		t.Fatalf("products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}
	if products[0].ProductID != "p1" || products[0].CategoryID == nil || *products[0].CategoryID != "cat-1" {
		t.Errorf("p1 ref = %+v", products[0])
	}
	if products[1].CategoryID != nil {
		t.Error("p2 should have no category")
	}

	users, err := db.UsersWithInventory(ctx)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("users = %v", users)
	}
}
