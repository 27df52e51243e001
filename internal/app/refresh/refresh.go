// Package refresh recomputes forecasts without consuming new events. It
// runs when a user logs in (refresh everything against the current habit
// set) and when a habit is created or deleted (rescale the learned means of
// the affected products so habits stay baked into cycle_mean_days).
package refresh

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

// Engine recomputes forecasts on demand.
type Engine struct {
	store  domain.Repository
	habits *habit.Resolver
	log    zerolog.Logger

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// New creates a refresh engine.
func New(store domain.Repository, habits *habit.Resolver, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		habits: habits,
		log:    log,
		Now:    time.Now,
	}
}

// RefreshUser recomputes the forecast for every product in the user's
// inventory. The habit multiplier is applied to the cached
// last_pred_days_left rather than re-derived from cycle_mean_days, so the
// refresh shapes the latest published number instead of resetting it.
// Per-product failures are logged and skipped.
func (e *Engine) RefreshUser(ctx context.Context, userID string) error {
	now := e.Now().UTC()
	profile, err := e.store.ActiveProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile for %s: %w", userID, err)
	}
	cfg := predictor.ConfigFromJSON(profile.Config)

	products, err := e.store.UserInventoryProducts(ctx, userID)
	if err != nil {
		return fmt.Errorf("load inventory products for %s: %w", userID, err)
	}

	for _, p := range products {
		if err := e.refreshOne(ctx, userID, p, profile.ProfileID, cfg, now); err != nil {
			observability.RefreshProductFailures.Inc()
			e.log.Error().Err(err).
				Str("user_id", userID).
				Str("product_id", p.ProductID).
				Msg("refresh failed for product")
		}
	}
	observability.RefreshRuns.WithLabelValues("user").Inc()
	return nil
}

func (e *Engine) refreshOne(ctx context.Context, userID string, p domain.ProductRef, profileID string, cfg predictor.Config, now time.Time) error {
	state, err := e.loadOrInitState(ctx, userID, p.ProductID, cfg, p.CategoryID, now)
	if err != nil {
		return err
	}

	mult := e.habits.Multiplier(ctx, userID, p.ProductID, p.CategoryID, now)
	forecast := state.Predict(now, mult, cfg, state.LastPredDaysLeft)
	state.StampForecast(forecast)

	return e.persist(ctx, userID, p.ProductID, profileID, state, forecast, now)
}

// RefreshProductsAffectedByHabit rescales the learned state of every
// product the habit touches. On creation the contributed multiplier divides
// cycle_mean_days and last_pred_days_left (faster consumption, shorter
// cycles); on deletion it multiplies them back. Products not in the user's
// inventory are ignored and per-product failures are isolated.
func (e *Engine) RefreshProductsAffectedByHabit(ctx context.Context, userID string, effects domain.HabitEffects, isDeletion bool) error {
	if effects.IsZero() {
		return nil
	}

	now := e.Now().UTC()
	profile, err := e.store.ActiveProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile for %s: %w", userID, err)
	}
	cfg := predictor.ConfigFromJSON(profile.Config)

	products, err := e.store.UserInventoryProducts(ctx, userID)
	if err != nil {
		return fmt.Errorf("load inventory products for %s: %w", userID, err)
	}

	for _, p := range products {
		if !effects.Affects(p.ProductID, p.CategoryID) {
			continue
		}
		if err := e.rescaleOne(ctx, userID, p, profile.ProfileID, cfg, effects, isDeletion, now); err != nil {
			observability.RefreshProductFailures.Inc()
			e.log.Error().Err(err).
				Str("user_id", userID).
				Str("product_id", p.ProductID).
				Bool("deletion", isDeletion).
				Msg("habit rescale failed for product")
		}
	}
	observability.RefreshRuns.WithLabelValues("habit").Inc()
	return nil
}

func (e *Engine) rescaleOne(ctx context.Context, userID string, p domain.ProductRef, profileID string, cfg predictor.Config, effects domain.HabitEffects, isDeletion bool, now time.Time) error {
	state, err := e.loadOrInitState(ctx, userID, p.ProductID, cfg, p.CategoryID, now)
	if err != nil {
		return err
	}

	mult := effects.MultiplierFor(p.ProductID, p.CategoryID)
	if mult < 1e-6 {
		mult = 1e-6
	}
	if isDeletion {
		state.CycleMeanDays *= mult
		if state.LastPredDaysLeft != nil {
			v := *state.LastPredDaysLeft * mult
			state.LastPredDaysLeft = &v
		}
	} else {
		state.CycleMeanDays /= mult
		if state.LastPredDaysLeft != nil {
			v := *state.LastPredDaysLeft / mult
			state.LastPredDaysLeft = &v
		}
	}
	if state.CycleMeanDays < cfg.MinCycleDays {
		state.CycleMeanDays = cfg.MinCycleDays
	}
	if state.CycleMeanDays > cfg.MaxCycleDays {
		state.CycleMeanDays = cfg.MaxCycleDays
	}

	// The habit is now baked into the state, so the forecast itself uses
	// the identity multiplier on the rescaled cached estimate.
	forecast := state.Predict(now, 1.0, cfg, state.LastPredDaysLeft)
	state.StampForecast(forecast)

	return e.persist(ctx, userID, p.ProductID, profileID, state, forecast, now)
}

func (e *Engine) loadOrInitState(ctx context.Context, userID, productID string, cfg predictor.Config, categoryID *string, now time.Time) (*predictor.CycleState, error) {
	row, err := e.store.PredictorState(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("load predictor state: %w", err)
	}
	if row == nil {
		return predictor.InitFromCategory(categoryID, cfg, now), nil
	}
	state, err := predictor.DecodeParams(row.ParamsJSON, now)
	if err != nil {
		e.log.Warn().Err(err).
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

func (e *Engine) persist(ctx context.Context, userID, productID, profileID string, state *predictor.CycleState, forecast domain.Forecast, now time.Time) error {
	params, err := state.EncodeParams()
	if err != nil {
		return fmt.Errorf("encode predictor state: %w", err)
	}
	if err := e.store.UpsertPredictorState(ctx, userID, productID, profileID, params, forecast.Confidence, now); err != nil {
		return fmt.Errorf("persist predictor state: %w", err)
	}
	if err := e.store.UpsertInventoryEstimate(ctx, userID, productID, forecast.ExpectedDaysLeft, forecast.PredictedState, forecast.Confidence, domain.SourceSystem, ""); err != nil {
		return fmt.Errorf("persist inventory estimate: %w", err)
	}
	if err := e.store.InsertForecast(ctx, userID, productID, forecast, ""); err != nil {
		return fmt.Errorf("persist forecast snapshot: %w", err)
	}
	observability.ForecastsWritten.WithLabelValues("refresh").Inc()
	return nil
}
