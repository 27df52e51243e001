package dispatcher

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

// ─── Log Row Classification ─────────────────────────────────────────────────
// A committed inventory_log row maps deterministically onto at most one
// internal event:
//
//	PURCHASE / RESET / REPURCHASE          → Purchase
//	TRASH                                  → Feedback(WASTED)
//	EMPTY                                  → Feedback(EMPTY)
//	note parses to a feedback kind         → Feedback(kind)
//	delta_state EMPTY                      → Feedback(EMPTY)
//	delta_state FULL                       → Purchase
//	anything else                          → no event

// Classify maps a log row onto its Purchase or Feedback event.
// At most one of the two returns is non-nil.
func Classify(row *domain.InventoryLogEntry) (*predictor.PurchaseEvent, *predictor.FeedbackEvent) {
	purchase := &predictor.PurchaseEvent{TS: row.OccurredAt, Source: row.Source}
	fb := func(kind domain.FeedbackKind) *predictor.FeedbackEvent {
		return &predictor.FeedbackEvent{TS: row.OccurredAt, Kind: kind, Note: row.Note, Source: row.Source}
	}

	switch row.Action {
	case domain.ActionPurchase, domain.ActionReset, domain.ActionRepurchase:
		return purchase, nil
	case domain.ActionTrash:
		return nil, fb(domain.FeedbackWasted)
	case domain.ActionEmpty:
		return nil, fb(domain.FeedbackEmpty)
	}

	if kind, ok := ParseFeedbackNote(row.Note); ok {
		return nil, fb(kind)
	}

	if row.DeltaState != nil {
		switch *row.DeltaState {
		case domain.StateEmpty:
			return nil, fb(domain.FeedbackEmpty)
		case domain.StateFull:
			return purchase, nil
		}
	}

	return nil, nil
}

// noteKeywords maps free-text tokens onto feedback kinds. Order matters:
// waste markers are checked before "empty"/"out" so that notes like
// "WASTED: ran out" keep their waste meaning.
var noteKeywords = []struct {
	kind   domain.FeedbackKind
	tokens []string
}{
	{domain.FeedbackWasted, []string{"wasted", "thrown", "נזרק"}},
	{domain.FeedbackEmpty, []string{"empty", "out", "נגמר"}},
	{domain.FeedbackExact, []string{"exact", "בול"}},
	{domain.FeedbackMore, []string{"more", "יותר"}},
	{domain.FeedbackLess, []string{"less", "פחות"}},
}

// ParseFeedbackNote extracts a feedback kind from a log note. It accepts
// JSON ({"feedback_kind": "MORE"} or {"kind": "MORE"}) and plain text
// containing English or Hebrew keywords. Keywords match whole words only
// ("routine" does not match "out"); matching is case-insensitive.
func ParseFeedbackNote(note string) (domain.FeedbackKind, bool) {
	s := strings.TrimSpace(note)
	if s == "" {
		return "", false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		raw, _ := obj["feedback_kind"].(string)
		if raw == "" {
			raw, _ = obj["kind"].(string)
		}
		if raw != "" {
			kind := domain.FeedbackKind(strings.ToUpper(raw))
			switch kind {
			case domain.FeedbackMore, domain.FeedbackLess, domain.FeedbackExact,
				domain.FeedbackEmpty, domain.FeedbackWasted:
				return kind, true
			}
		}
		return "", false
	}

	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, entry := range noteKeywords {
		for _, token := range entry.tokens {
			for _, w := range words {
				if w == token {
					return entry.kind, true
				}
			}
		}
	}
	return "", false
}
