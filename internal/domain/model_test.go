package domain

import (
	"math"
	"testing"
	"time"
)

func TestStateRankOrdering(t *testing.T) {
	ordered := []InventoryState{StateEmpty, StateLow, StateMedium, StateFull}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Rank() >= ordered[i].Rank() {
			t.Errorf("%s should rank below %s", ordered[i-1], ordered[i])
		}
	}
	if StateUnknown.Rank() != StateMedium.Rank() {
		t.Error("UNKNOWN should rank like MEDIUM")
	}
}

func TestHabitActiveAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name  string
		habit Habit
		want  bool
	}{
		{"active unbounded", Habit{Status: HabitActive}, true},
		{"active in range", Habit{Status: HabitActive, StartDate: &past, EndDate: &future}, true},
		{"not started", Habit{Status: HabitActive, StartDate: &future}, false},
		{"already ended", Habit{Status: HabitActive, EndDate: &past}, false},
		{"inactive", Habit{Status: HabitInactive}, false},
		{"expired", Habit{Status: HabitExpired, StartDate: &past, EndDate: &future}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.habit.ActiveAt(now); got != tt.want {
				t.Errorf("ActiveAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseHabitEffects(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		e := ParseHabitEffects([]byte(`{
			"global_multiplier": 1.2,
			"product_multipliers": {"p1": 2.0},
			"category_multipliers": {"c1": 0.5},
			"unknown_field": true
		}`))
		if e.GlobalMultiplier == nil || *e.GlobalMultiplier != 1.2 {
			t.Errorf("global = %v", e.GlobalMultiplier)
		}
		if e.ProductMultipliers["p1"] != 2.0 || e.CategoryMultipliers["c1"] != 0.5 {
			t.Errorf("effects = %+v", e)
		}
	})

	t.Run("degenerate payloads yield identity", func(t *testing.T) {
		for _, raw := range []string{"", "   ", "null", "[1,2]", "not json"} {
			e := ParseHabitEffects([]byte(raw))
			if !e.IsZero() {
				t.Errorf("ParseHabitEffects(%q) = %+v, want identity", raw, e)
			}
			if e.MultiplierFor("p1", nil) != 1.0 {
				t.Errorf("identity effects should contribute 1.0")
			}
		}
	})
}

func TestHabitEffectsMultiplierFor(t *testing.T) {
	g := 1.1
	cat := "c1"
	e := HabitEffects{
		GlobalMultiplier:    &g,
		ProductMultipliers:  map[string]float64{"p1": 2.0},
		CategoryMultipliers: map[string]float64{"c1": 3.0},
	}

	if got := e.MultiplierFor("p1", &cat); math.Abs(got-1.1*2.0*3.0) > 1e-12 {
		t.Errorf("all three = %v", got)
	}
	if got := e.MultiplierFor("p2", nil); got != 1.1 {
		t.Errorf("global only = %v", got)
	}
	other := "c2"
	if got := e.MultiplierFor("p2", &other); got != 1.1 {
		t.Errorf("unmatched category = %v", got)
	}
}
