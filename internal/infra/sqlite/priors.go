package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pantrylab/pantryd/internal/predictor"
)

// DefaultCategoryPriorsByName returns the system (mean_days, mad_days)
// priors keyed by category name. New users get these before any
// personalized data exists; staples run out in days, pantry goods last for
// months.
func DefaultCategoryPriorsByName() map[string]predictor.CategoryPrior {
	return map[string]predictor.CategoryPrior{
		"Dairy & Eggs":         {MeanDays: 5.0, MadDays: 2.0},
		"Bread & Bakery":       {MeanDays: 4.0, MadDays: 1.5},
		"Meat & Poultry":       {MeanDays: 4.0, MadDays: 2.0},
		"Fish & Seafood":       {MeanDays: 3.0, MadDays: 1.5},
		"Fruits":               {MeanDays: 6.0, MadDays: 2.5},
		"Vegetables":           {MeanDays: 5.0, MadDays: 2.0},
		"Grains & Pasta":       {MeanDays: 35.0, MadDays: 10.0},
		"Canned & Jarred":      {MeanDays: 75.0, MadDays: 15.0},
		"Condiments & Sauces":  {MeanDays: 45.0, MadDays: 15.0},
		"Snacks":               {MeanDays: 10.0, MadDays: 5.0},
		"Beverages":            {MeanDays: 7.0, MadDays: 3.0},
		"Frozen Foods":         {MeanDays: 45.0, MadDays: 15.0},
		"Spices & Seasonings":  {MeanDays: 75.0, MadDays: 20.0},
	}
}

// defaultProfileConfig builds the config document for a fresh default
// profile: predictor defaults plus category priors mapped from the system
// name table onto the stored category ids (case-insensitive name match,
// fallback prior for unmatched categories).
func (db *DB) defaultProfileConfig(ctx context.Context) (map[string]any, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT category_id, category_name FROM product_categories`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	namePriors := DefaultCategoryPriorsByName()
	cfg := predictor.DefaultConfig()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		prior := predictor.FallbackPrior
		for knownName, p := range namePriors {
			if strings.EqualFold(knownName, name) {
				prior = p
				break
			}
		}
		cfg.CategoryPriors[id] = prior
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cfg.ToJSON(), nil
}
