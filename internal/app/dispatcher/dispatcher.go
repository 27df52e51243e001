// Package dispatcher turns committed inventory log rows into predictor
// updates: it classifies the row, applies the event to the per-product cycle
// state, and persists the fresh forecast, inventory estimate, and snapshot.
//
// The dispatcher must see each log id at most once. The cumulative-average
// update is not idempotent (a replayed purchase that concludes a cycle bumps
// n_completed_cycles again), so callers schedule exactly one dispatch per
// log insert.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/habit"
	"github.com/pantrylab/pantryd/internal/infra/observability"
	"github.com/pantrylab/pantryd/internal/predictor"
)

// Dispatcher processes inventory log events.
type Dispatcher struct {
	store  domain.Repository
	habits *habit.Resolver
	log    zerolog.Logger

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// New creates an event dispatcher.
func New(store domain.Repository, habits *habit.Resolver, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		habits: habits,
		log:    log,
		Now:    time.Now,
	}
}

// Process dispatches one log row. The pre-update coarse inventory state for
// a purchase is read from the store.
func (d *Dispatcher) Process(ctx context.Context, logID string) error {
	return d.process(ctx, logID, nil)
}

// ProcessWithPriorState dispatches one log row using a caller-captured
// coarse inventory state. The repurchase action passes the state it read
// before writing its log row, so the purchase is judged against the shelf
// as the user saw it.
func (d *Dispatcher) ProcessWithPriorState(ctx context.Context, logID string, prior domain.InventoryState) error {
	return d.process(ctx, logID, &prior)
}

func (d *Dispatcher) process(ctx context.Context, logID string, prior *domain.InventoryState) error {
	row, err := d.store.InventoryLogRow(ctx, logID)
	if err != nil {
		return fmt.Errorf("load log row %s: %w", logID, err)
	}
	now := d.Now().UTC()

	profile, err := d.store.ActiveProfile(ctx, row.UserID)
	if err != nil {
		return fmt.Errorf("load profile for %s: %w", row.UserID, err)
	}
	cfg := predictor.ConfigFromJSON(profile.Config)

	categoryID, err := d.categoryOf(ctx, row.UserID, row.ProductID)
	if err != nil {
		return err
	}

	state, err := d.loadOrInitState(ctx, row.UserID, row.ProductID, cfg, categoryID, now)
	if err != nil {
		return err
	}

	purchaseEv, feedbackEv := Classify(row)

	multiplier := 1.0
	switch {
	case purchaseEv != nil:
		current := domain.StateUnknown
		if prior != nil {
			current = *prior
		} else if st, err := d.store.CurrentInventoryState(ctx, row.UserID, row.ProductID); err == nil {
			current = st
		}
		state.ApplyPurchase(*purchaseEv, cfg, current)
		observability.EventsDispatched.WithLabelValues("purchase").Inc()
		// Habits are already baked into cycle_mean_days by the refresh
		// protocol, so the purchase forecast must not divide again.

	case feedbackEv != nil:
		state.ApplyFeedback(*feedbackEv, cfg)
		multiplier = d.habits.Multiplier(ctx, row.UserID, row.ProductID, categoryID, now)
		observability.EventsDispatched.WithLabelValues("feedback").Inc()

	default:
		multiplier = d.habits.Multiplier(ctx, row.UserID, row.ProductID, categoryID, now)
		observability.EventsDispatched.WithLabelValues("none").Inc()
	}

	forecast := state.Predict(now, multiplier, cfg, nil)
	state.StampForecast(forecast)

	if err := d.persist(ctx, row.UserID, row.ProductID, profile.ProfileID, state, forecast, now, logID); err != nil {
		return err
	}
	observability.ForecastsWritten.WithLabelValues("dispatch").Inc()
	return nil
}

// categoryOf resolves a product's category from the user's inventory.
func (d *Dispatcher) categoryOf(ctx context.Context, userID, productID string) (*string, error) {
	products, err := d.store.UserInventoryProducts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load inventory products for %s: %w", userID, err)
	}
	for _, p := range products {
		if p.ProductID == productID {
			return p.CategoryID, nil
		}
	}
	return nil, nil
}

// loadOrInitState loads the persisted cycle state, seeding a fresh one from
// the category prior on first contact. Malformed params are logged and
// replaced with a prior-seeded state rather than failing the event.
func (d *Dispatcher) loadOrInitState(ctx context.Context, userID, productID string, cfg predictor.Config, categoryID *string, now time.Time) (*predictor.CycleState, error) {
	row, err := d.store.PredictorState(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("load predictor state %s/%s: %w", userID, productID, err)
	}
	if row == nil {
		return predictor.InitFromCategory(categoryID, cfg, now), nil
	}

	state, err := predictor.DecodeParams(row.ParamsJSON, now)
	if err != nil {
		d.log.Warn().Err(err).
			Str("user_id", userID).
			Str("product_id", productID).
			Msg("malformed predictor state, reseeding from category prior")
		return predictor.InitFromCategory(categoryID, cfg, now), nil
	}
	if state.CategoryID == nil && categoryID != nil {
		v := *categoryID
		state.CategoryID = &v
	}
	return state, nil
}

// persist writes the predictor state, the inventory estimate, and a
// forecast snapshot in one pass.
func (d *Dispatcher) persist(ctx context.Context, userID, productID, profileID string, state *predictor.CycleState, forecast domain.Forecast, now time.Time, triggerLogID string) error {
	params, err := state.EncodeParams()
	if err != nil {
		return fmt.Errorf("encode predictor state: %w", err)
	}
	if err := d.store.UpsertPredictorState(ctx, userID, productID, profileID, params, forecast.Confidence, now); err != nil {
		return fmt.Errorf("persist predictor state: %w", err)
	}
	if err := d.store.UpsertInventoryEstimate(ctx, userID, productID, forecast.ExpectedDaysLeft, forecast.PredictedState, forecast.Confidence, domain.SourceSystem, ""); err != nil {
		return fmt.Errorf("persist inventory estimate: %w", err)
	}
	if err := d.store.InsertForecast(ctx, userID, productID, forecast, triggerLogID); err != nil {
		return fmt.Errorf("persist forecast snapshot: %w", err)
	}
	return nil
}
