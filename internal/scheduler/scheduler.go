// Package scheduler runs the two daily background jobs that advance the
// population of product states:
//
//   - State Decay: at 00:00 UTC every product loses one day of estimated
//     supply, products hitting zero are marked empty.
//   - Weekly Re-estimation: at 00:00 UTC each product whose first log row
//     landed on today's weekday gets its re-estimation slot. The slot is
//     currently a no-op (cycle averaging happens inside the purchase path);
//     it exists so a purely time-driven update can be re-enabled without
//     touching the dispatcher.
//
// The jobs are independent loops: each sleeps until the next UTC midnight,
// runs, and goes back to sleep. Any error backs the loop off for an hour.
package scheduler

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

const errBackoff = time.Hour

// Scheduler owns the two daily jobs.
type Scheduler struct {
	store  domain.Repository
	habits *habit.Resolver
	log    zerolog.Logger

	// Now is an injectable clock for testing.
	Now func() time.Time
}

// New creates the scheduler.
func New(store domain.Repository, habits *habit.Resolver, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		habits: habits,
		log:    log,
		Now:    time.Now,
	}
}

// ─── Loops ──────────────────────────────────────────────────────────────────

// RunDecayLoop runs the state decay job at every UTC midnight until ctx is
// cancelled.
func (s *Scheduler) RunDecayLoop(ctx context.Context) error {
	return s.loop(ctx, "state_decay", s.RunStateDecay)
}

// RunWeeklyLoop runs the weekly re-estimation job at every UTC midnight
// until ctx is cancelled.
func (s *Scheduler) RunWeeklyLoop(ctx context.Context) error {
	return s.loop(ctx, "weekly_reestimation", s.RunWeeklyReestimation)
}

func (s *Scheduler) loop(ctx context.Context, name string, job func(context.Context) error) error {
	for {
		wait := untilNextUTCMidnight(s.Now())
		s.log.Debug().Str("job", name).Dur("sleep", wait).Msg("scheduler sleeping")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		start := s.Now()
		if err := job(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("scheduler run failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errBackoff):
			}
			continue
		}
		observability.SchedulerRuns.WithLabelValues(name).Inc()
		observability.SchedulerRunDuration.WithLabelValues(name).Observe(s.Now().Sub(start).Seconds())
	}
}

// untilNextUTCMidnight returns the duration from now to the next 00:00 UTC.
func untilNextUTCMidnight(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return next.Sub(now)
}

// ─── State Decay ────────────────────────────────────────────────────────────

// RunStateDecay walks every user's inventory and takes one day off each
// non-empty product. Per-product failures are logged and the walk continues.
func (s *Scheduler) RunStateDecay(ctx context.Context) error {
	now := s.Now().UTC()
	users, err := s.store.UsersWithInventory(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, userID := range users {
		profile, err := s.store.ActiveProfile(ctx, userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("decay: profile load failed")
			continue
		}
		cfg := predictor.ConfigFromJSON(profile.Config)

		products, err := s.store.UserInventoryProducts(ctx, userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("decay: inventory load failed")
			continue
		}
		for _, p := range products {
			if err := s.decayOne(ctx, userID, p, profile.ProfileID, cfg, now); err != nil {
				observability.SchedulerProductFailures.WithLabelValues("state_decay").Inc()
				s.log.Error().Err(err).
					Str("user_id", userID).
					Str("product_id", p.ProductID).
					Msg("decay failed for product")
			}
		}
	}
	return nil
}

func (s *Scheduler) decayOne(ctx context.Context, userID string, p domain.ProductRef, profileID string, cfg predictor.Config, now time.Time) error {
	row, err := s.store.InventoryItem(ctx, userID, p.ProductID)
	if err != nil {
		return fmt.Errorf("load inventory row: %w", err)
	}
	if row.State == domain.StateEmpty {
		return nil
	}

	state, err := s.loadOrInitState(ctx, userID, p.ProductID, cfg, p.CategoryID, now)
	if err != nil {
		return err
	}

	var d0 float64
	if row.EstimatedQty != nil {
		d0 = *row.EstimatedQty
	} else {
		mult := s.habits.Multiplier(ctx, userID, p.ProductID, p.CategoryID, now)
		d0 = state.ComputeDaysLeft(now, mult, cfg, nil)
	}

	d1 := d0 - 1
	if d1 < 0 {
		d1 = 0
	}
	if d1 <= 0 && state.EmptyAt == nil {
		t := now
		state.EmptyAt = &t
	}

	newState := predictor.DeriveState(d1, state.CycleMeanDays, cfg)
	confidence := state.ComputeConfidence(now, cfg)
	state.StampForecast(domain.Forecast{ExpectedDaysLeft: d1, GeneratedAt: now})

	params, err := state.EncodeParams()
	if err != nil {
		return fmt.Errorf("encode predictor state: %w", err)
	}
	if err := s.store.UpsertPredictorState(ctx, userID, p.ProductID, profileID, params, confidence, now); err != nil {
		return fmt.Errorf("persist predictor state: %w", err)
	}
	if err := s.store.UpsertInventoryEstimate(ctx, userID, p.ProductID, d1, newState, confidence, domain.SourceSystem, ""); err != nil {
		return fmt.Errorf("persist inventory estimate: %w", err)
	}
	return nil
}

func (s *Scheduler) loadOrInitState(ctx context.Context, userID, productID string, cfg predictor.Config, categoryID *string, now time.Time) (*predictor.CycleState, error) {
	row, err := s.store.PredictorState(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("load predictor state: %w", err)
	}
	if row == nil {
		return predictor.InitFromCategory(categoryID, cfg, now), nil
	}
	state, err := predictor.DecodeParams(row.ParamsJSON, now)
	if err != nil {
		s.log.Warn().Err(err).
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

// ─── Weekly Re-estimation ───────────────────────────────────────────────────

// RunWeeklyReestimation visits every product whose earliest log row shares
// today's weekday and runs its re-estimation slot.
func (s *Scheduler) RunWeeklyReestimation(ctx context.Context) error {
	now := s.Now().UTC()
	users, err := s.store.UsersWithInventory(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	visited := 0
	for _, userID := range users {
		products, err := s.store.UserInventoryProducts(ctx, userID)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("weekly: inventory load failed")
			continue
		}
		for _, p := range products {
			first, err := s.store.FirstLogOccurredAt(ctx, userID, p.ProductID)
			if err != nil {
				observability.SchedulerProductFailures.WithLabelValues("weekly_reestimation").Inc()
				s.log.Error().Err(err).
					Str("user_id", userID).
					Str("product_id", p.ProductID).
					Msg("weekly: first log lookup failed")
				continue
			}
			if first == nil || first.UTC().Weekday() != now.Weekday() {
				continue
			}
			s.reestimateOne(userID, p.ProductID)
			visited++
		}
	}
	s.log.Info().Int("products", visited).Msg("weekly re-estimation pass complete")
	return nil
}

// reestimateOne is the weekly update slot for a single product. The cycle
// average is maintained inside the purchase path, so the slot currently
// leaves the state untouched.
func (s *Scheduler) reestimateOne(userID, productID string) {
	s.log.Debug().
		Str("user_id", userID).
		Str("product_id", productID).
		Msg("weekly re-estimation slot")
}
