// Package predictor implements the per-product cycle-average consumption
// model. Despite the historical "EMA" name, completed cycles update the mean
// with a cumulative average; the EMA weights survive only in the weak
// feedback paths.
//
// Everything in this package is pure: no I/O, no clocks, no stores. Callers
// pass `now` explicitly.
package predictor

import (
	"encoding/json"
	"time"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// CategoryPrior is the cold-start (mean, MAD) estimate for one category.
type CategoryPrior struct {
	MeanDays float64 `json:"mean_days"`
	MadDays  float64 `json:"mad_days"`
}

// FallbackPrior is used when a product's category has no configured prior.
var FallbackPrior = CategoryPrior{MeanDays: 7.0, MadDays: 2.0}

// Config is the tunable part of a predictor profile.
type Config struct {
	// CategoryPriors maps category id to its cold-start prior.
	CategoryPriors map[string]CategoryPrior

	// EMA weights. AlphaStrong feeds the WASTED "ran out" weak update and
	// AlphaConfirm the EXACT MAD decay. AlphaWeak is carried in the profile
	// config but no update reads it.
	AlphaStrong  float64
	AlphaWeak    float64
	AlphaConfirm float64

	// Bounds on the learned cycle mean, in days.
	MinCycleDays float64
	MaxCycleDays float64

	// MORE/LESS correction settings, carried in the profile config. Nothing
	// reads them: the API feedback shaping uses fixed factors (×1.15, ×0.85,
	// 0.15×mean) and applies no step cap.
	MoreLessRatio       float64
	MoreLessStepCapDays float64

	// Coarse state thresholds by ratio days_left / cycle_mean_days.
	FullRatio   float64
	MediumRatio float64

	// Confidence recency decay constant, in days.
	RecencyTauDays float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CategoryPriors:      map[string]CategoryPrior{},
		AlphaStrong:         0.12,
		AlphaWeak:           0.10,
		AlphaConfirm:        0.05,
		MinCycleDays:        1.0,
		MaxCycleDays:        90.0,
		MoreLessRatio:       0.15,
		MoreLessStepCapDays: 3.0,
		FullRatio:           0.70,
		MediumRatio:         0.30,
		RecencyTauDays:      21.0,
	}
}

// ConfigFromJSON coerces a raw profile config document into a Config.
// Unknown keys are ignored; malformed values fall back to defaults.
func ConfigFromJSON(raw map[string]any) Config {
	cfg := DefaultConfig()
	if raw == nil {
		return cfg
	}

	if priors, ok := raw["category_priors"].(map[string]any); ok {
		for id, v := range priors {
			entry, ok := v.(map[string]any)
			if !ok {
				continue
			}
			cfg.CategoryPriors[id] = CategoryPrior{
				MeanDays: floatOr(entry["mean_days"], FallbackPrior.MeanDays),
				MadDays:  floatOr(entry["mad_days"], FallbackPrior.MadDays),
			}
		}
	}

	cfg.AlphaStrong = floatOr(raw["alpha_strong"], cfg.AlphaStrong)
	cfg.AlphaWeak = floatOr(raw["alpha_weak"], cfg.AlphaWeak)
	cfg.AlphaConfirm = floatOr(raw["alpha_confirm"], cfg.AlphaConfirm)
	cfg.MinCycleDays = floatOr(raw["min_cycle_days"], cfg.MinCycleDays)
	cfg.MaxCycleDays = floatOr(raw["max_cycle_days"], cfg.MaxCycleDays)
	cfg.MoreLessRatio = floatOr(raw["more_less_ratio"], cfg.MoreLessRatio)
	cfg.MoreLessStepCapDays = floatOr(raw["more_less_step_cap_days"], cfg.MoreLessStepCapDays)
	cfg.FullRatio = floatOr(raw["full_ratio"], cfg.FullRatio)
	cfg.MediumRatio = floatOr(raw["medium_ratio"], cfg.MediumRatio)
	cfg.RecencyTauDays = floatOr(raw["recency_tau_days"], cfg.RecencyTauDays)
	return cfg
}

// Prior resolves the cold-start prior for a category id (nil or unknown
// categories get the fallback).
func (c Config) Prior(categoryID *string) CategoryPrior {
	if categoryID != nil {
		if p, ok := c.CategoryPriors[*categoryID]; ok {
			return p
		}
	}
	return FallbackPrior
}

// ToJSON renders the config as a raw document with the stable key names
// recognized by ConfigFromJSON. Used when seeding a default profile.
func (c Config) ToJSON() map[string]any {
	priors := make(map[string]any, len(c.CategoryPriors))
	for id, p := range c.CategoryPriors {
		priors[id] = map[string]any{"mean_days": p.MeanDays, "mad_days": p.MadDays}
	}
	return map[string]any{
		"category_priors":         priors,
		"alpha_strong":            c.AlphaStrong,
		"alpha_weak":              c.AlphaWeak,
		"alpha_confirm":           c.AlphaConfirm,
		"min_cycle_days":          c.MinCycleDays,
		"max_cycle_days":          c.MaxCycleDays,
		"more_less_ratio":         c.MoreLessRatio,
		"more_less_step_cap_days": c.MoreLessStepCapDays,
		"full_ratio":              c.FullRatio,
		"medium_ratio":            c.MediumRatio,
		"recency_tau_days":        c.RecencyTauDays,
	}
}

// floatOr coerces a decoded JSON number, falling back for anything else.
func floatOr(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return fallback
		}
		return f
	default:
		return fallback
	}
}

// daysBetween returns |a - b| in days as a float.
func daysBetween(a, b time.Time) float64 {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d.Seconds() / 86400.0
}
