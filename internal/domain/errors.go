package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. The API layer maps
// them onto HTTP statuses with errors.Is.

var (
	// Referenced entities
	ErrLogRowNotFound  = errors.New("inventory log row not found")
	ErrProfileNotFound = errors.New("no active predictor profile for user")
	ErrHabitNotFound   = errors.New("habit not found")
	ErrItemNotFound    = errors.New("inventory item not found")

	// Predictor state
	ErrStateMalformed = errors.New("predictor state params malformed")

	// Store availability
	ErrStoreUnavailable = errors.New("repository unavailable")

	// Request validation (never reaches the predictor core)
	ErrInvalidFeedback = errors.New("feedback direction must be 'more' or 'less'")
	ErrUnknownAction   = errors.New("unknown action type")
)
