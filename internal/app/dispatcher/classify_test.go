package dispatcher

import (
	"testing"
	"time"

	"github.com/pantrylab/pantryd/internal/domain"
)

func logRow(action domain.InventoryAction, note string, delta *domain.InventoryState) *domain.InventoryLogEntry {
	return &domain.InventoryLogEntry{
		LogID:      "log-1",
		UserID:     "u1",
		ProductID:  "p1",
		Action:     action,
		DeltaState: delta,
		OccurredAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Source:     domain.SourceManual,
		Note:       note,
	}
}

func statePtr(s domain.InventoryState) *domain.InventoryState { return &s }

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		row          *domain.InventoryLogEntry
		wantPurchase bool
		wantKind     domain.FeedbackKind
	}{
		{"purchase action", logRow(domain.ActionPurchase, "", nil), true, ""},
		{"reset action", logRow(domain.ActionReset, "", nil), true, ""},
		{"repurchase action", logRow(domain.ActionRepurchase, "PURCHASE: restocked", nil), true, ""},
		{"trash is wasted", logRow(domain.ActionTrash, "WASTED: taste bad", statePtr(domain.StateEmpty)), false, domain.FeedbackWasted},
		{"trash without note", logRow(domain.ActionTrash, "", nil), false, domain.FeedbackWasted},
		{"empty action", logRow(domain.ActionEmpty, "EMPTY: ran out", statePtr(domain.StateEmpty)), false, domain.FeedbackEmpty},
		{"adjust with more note", logRow(domain.ActionAdjust, "User feedback: More stock needed", nil), false, domain.FeedbackMore},
		{"adjust with less note", logRow(domain.ActionAdjust, "User feedback: Less stock needed", nil), false, domain.FeedbackLess},
		{"adjust with json note", logRow(domain.ActionAdjust, `{"feedback_kind": "exact"}`, nil), false, domain.FeedbackExact},
		{"adjust with hebrew note", logRow(domain.ActionAdjust, "נגמר", nil), false, domain.FeedbackEmpty},
		{"delta empty fallback", logRow(domain.ActionAdjust, "", statePtr(domain.StateEmpty)), false, domain.FeedbackEmpty},
		{"delta full fallback", logRow(domain.ActionAdjust, "", statePtr(domain.StateFull)), true, ""},
		{"nothing matches", logRow(domain.ActionAdjust, "", statePtr(domain.StateMedium)), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := Classify(tt.row)
			if (p != nil) != tt.wantPurchase {
				t.Fatalf("purchase = %v, want %v", p != nil, tt.wantPurchase)
			}
			if tt.wantKind == "" {
				if f != nil {
					t.Fatalf("unexpected feedback %s", f.Kind)
				}
				return
			}
			if f == nil || f.Kind != tt.wantKind {
				t.Fatalf("feedback = %+v, want kind %s", f, tt.wantKind)
			}
			if !f.TS.Equal(tt.row.OccurredAt) {
				t.Error("feedback timestamp should be the row's occurred_at")
			}
		})
	}
}

func TestParseFeedbackNote(t *testing.T) {
	tests := []struct {
		note string
		want domain.FeedbackKind
		ok   bool
	}{
		{`{"feedback_kind": "MORE"}`, domain.FeedbackMore, true},
		{`{"kind": "wasted"}`, domain.FeedbackWasted, true},
		{`{"feedback_kind": "SIDEWAYS"}`, "", false},
		{`{"other": 1}`, "", false},
		{"WASTED: ran out", domain.FeedbackWasted, true}, // waste wins over "out"
		{"we are out of milk", domain.FeedbackEmpty, true},
		{"thrown away, smelled off", domain.FeedbackWasted, true},
		{"exact amount", domain.FeedbackExact, true},
		{"בול", domain.FeedbackExact, true},
		{"יותר", domain.FeedbackMore, true},
		{"פחות", domain.FeedbackLess, true},
		{"נזרק", domain.FeedbackWasted, true},
		{"", "", false},
		{"routine restock", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.note, func(t *testing.T) {
			got, ok := ParseFeedbackNote(tt.note)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseFeedbackNote(%q) = (%q, %v), want (%q, %v)", tt.note, got, ok, tt.want, tt.ok)
			}
		})
	}
}
