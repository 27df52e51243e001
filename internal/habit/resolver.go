// Package habit composes active habit effects into a single consumption
// multiplier per (user, product). Multiplier > 1 means faster consumption;
// days_left is divided by it at prediction time.
package habit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/infra/observability"
)

// minMultiplier is the floor applied before any division.
const minMultiplier = 1e-6

// EffectsSource is the slice of the repository the resolver needs.
type EffectsSource interface {
	ActiveHabitEffects(ctx context.Context, userID string, now time.Time) ([]domain.HabitEffects, error)
}

// Resolver computes habit multipliers. It never fails the caller: a store
// error degrades to the identity multiplier with a warning.
type Resolver struct {
	store EffectsSource
	log   zerolog.Logger
}

// NewResolver creates a habit multiplier resolver.
func NewResolver(store EffectsSource, log zerolog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Multiplier returns the composed multiplier for one product at now.
// Global, per-product, and per-category multipliers of every active habit
// multiply together; missing fields contribute 1.0.
func (r *Resolver) Multiplier(ctx context.Context, userID, productID string, categoryID *string, now time.Time) float64 {
	effects, err := r.store.ActiveHabitEffects(ctx, userID, now)
	if err != nil {
		observability.HabitDegradations.Inc()
		r.log.Warn().Err(err).
			Str("user_id", userID).
			Str("product_id", productID).
			Msg("habit effects unavailable, using multiplier 1.0")
		return 1.0
	}

	return Compose(effects, productID, categoryID)
}

// Compose folds a set of effects into one clamped multiplier.
func Compose(effects []domain.HabitEffects, productID string, categoryID *string) float64 {
	mult := 1.0
	for _, e := range effects {
		mult *= e.MultiplierFor(productID, categoryID)
	}
	return max(mult, minMultiplier)
}
