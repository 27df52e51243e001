package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

// parseStoredTime decodes a stored timestamp, tolerating the precision
// variants different writers produce.
func parseStoredTime(s string) time.Time {
	t, _ := predictor.ParseTimestamp(s)
	return t
}

// ─── Catalog Seeding ────────────────────────────────────────────────────────

// UpsertCategory registers or renames a product category.
func (db *DB) UpsertCategory(ctx context.Context, categoryID, name string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO product_categories (category_id, category_name)
		VALUES (?, ?)
		ON CONFLICT(category_id) DO UPDATE SET category_name = excluded.category_name
	`, categoryID, name)
	return err
}

// UpsertProduct registers a product. categoryID may be nil.
func (db *DB) UpsertProduct(ctx context.Context, productID, name string, categoryID *string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO products (product_id, product_name, category_id)
		VALUES (?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			product_name = excluded.product_name,
			category_id  = excluded.category_id
	`, productID, name, categoryID)
	return err
}

// EnsureInventoryRow creates an UNKNOWN inventory line for the pair if none
// exists yet.
func (db *DB) EnsureInventoryRow(ctx context.Context, userID, productID string) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO inventory (user_id, product_id, state, qty_unit)
		VALUES (?, ?, 'UNKNOWN', 'days')
	`, userID, productID)
	return err
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// ActiveProfile returns the user's active profile, creating a default one
// seeded with system category priors on first read.
func (db *DB) ActiveProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := db.loadActiveProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	cfg, err := db.defaultProfileConfig(ctx)
	if err != nil {
		return nil, err
	}
	rawCfg, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode default profile config: %w", err)
	}

	profileID := uuid.NewString()
	_, err = db.db.ExecContext(ctx, `
		INSERT INTO predictor_profiles (predictor_profile_id, user_id, name, method, config, is_active, created_at)
		VALUES (?, ?, 'Default Profile', 'EMA', ?, 1, ?)
	`, profileID, userID, string(rawCfg), formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("create default profile: %w", err)
	}
	return db.loadActiveProfile(ctx, userID)
}

func (db *DB) loadActiveProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p      domain.Profile
		rawCfg string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT predictor_profile_id, user_id, method, config
		FROM predictor_profiles
		WHERE user_id = ? AND is_active = 1
		LIMIT 1
	`, userID).Scan(&p.ProfileID, &p.UserID, &p.Method, &rawCfg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if err := json.Unmarshal([]byte(rawCfg), &p.Config); err != nil {
		p.Config = map[string]any{}
	}
	return &p, nil
}

// ─── Products / Users ───────────────────────────────────────────────────────

// UserInventoryProducts lists (product_id, category_id) for every product
// in the user's inventory.
func (db *DB) UserInventoryProducts(ctx context.Context, userID string) ([]domain.ProductRef, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT i.product_id, p.category_id
		FROM inventory i
		LEFT JOIN products p ON p.product_id = i.product_id
		WHERE i.user_id = ?
		ORDER BY i.product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list inventory products: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductRef
	for rows.Next() {
		var (
			ref domain.ProductRef
			cat sql.NullString
		)
		if err := rows.Scan(&ref.ProductID, &cat); err != nil {
			return nil, err
		}
		if cat.Valid {
			v := cat.String
			ref.CategoryID = &v
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// UsersWithInventory lists every user owning at least one inventory row.
func (db *DB) UsersWithInventory(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM inventory ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ─── Predictor State ────────────────────────────────────────────────────────

// PredictorState returns the persisted state row, or nil when absent.
func (db *DB) PredictorState(ctx context.Context, userID, productID string) (*domain.PredictorStateRow, error) {
	var (
		row       domain.PredictorStateRow
		params    string
		updatedAt string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT params, confidence, updated_at, predictor_profile_id
		FROM product_predictor_state
		WHERE user_id = ? AND product_id = ?
	`, userID, productID).Scan(&params, &row.Confidence, &updatedAt, &row.ProfileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load predictor state: %w", err)
	}
	row.ParamsJSON = []byte(params)
	row.UpdatedAt = parseStoredTime(updatedAt)
	return &row, nil
}

// UpsertPredictorState writes the per-product state row.
func (db *DB) UpsertPredictorState(ctx context.Context, userID, productID, profileID string, paramsJSON []byte, confidence float64, updatedAt time.Time) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO product_predictor_state (user_id, product_id, predictor_profile_id, params, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			predictor_profile_id = excluded.predictor_profile_id,
			params     = excluded.params,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, userID, productID, profileID, string(paramsJSON), confidence, formatTime(updatedAt))
	return err
}

// ─── Inventory ──────────────────────────────────────────────────────────────

// UpsertInventoryEstimate writes the predictor's estimate onto the
// inventory row, keeping the stored displayed name unless a new one is
// given.
func (db *DB) UpsertInventoryEstimate(ctx context.Context, userID, productID string, daysLeft float64, state domain.InventoryState, confidence float64, source domain.InventorySource, displayedName string) error {
	var name *string
	if displayedName != "" {
		name = &displayedName
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO inventory (user_id, product_id, state, estimated_qty, qty_unit, confidence, last_source, last_updated_at, displayed_name)
		VALUES (?, ?, ?, ?, 'days', ?, ?, ?, ?)
		ON CONFLICT(user_id, product_id) DO UPDATE SET
			state           = excluded.state,
			estimated_qty   = excluded.estimated_qty,
			qty_unit        = excluded.qty_unit,
			confidence      = excluded.confidence,
			last_source     = excluded.last_source,
			last_updated_at = excluded.last_updated_at,
			displayed_name  = COALESCE(excluded.displayed_name, inventory.displayed_name)
	`, userID, productID, string(state), daysLeft, confidence, string(source), formatTime(time.Now()), name)
	return err
}

// InventoryItem returns the inventory row, or ErrItemNotFound.
func (db *DB) InventoryItem(ctx context.Context, userID, productID string) (*domain.InventoryRow, error) {
	var (
		row       domain.InventoryRow
		qty       sql.NullFloat64
		updatedAt sql.NullString
		name      sql.NullString
		state     string
		source    string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT user_id, product_id, state, estimated_qty, qty_unit, confidence, last_source, last_updated_at, displayed_name
		FROM inventory
		WHERE user_id = ? AND product_id = ?
	`, userID, productID).Scan(&row.UserID, &row.ProductID, &state, &qty, &row.QtyUnit, &row.Confidence, &source, &updatedAt, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load inventory item: %w", err)
	}
	row.State = domain.InventoryState(state)
	row.LastSource = domain.InventorySource(source)
	if qty.Valid {
		v := qty.Float64
		row.EstimatedQty = &v
	}
	if updatedAt.Valid {
		row.LastUpdatedAt = parseStoredTime(updatedAt.String)
	}
	if name.Valid {
		row.DisplayedName = name.String
	}
	return &row, nil
}

// CurrentInventoryState returns the row's coarse state, UNKNOWN when absent.
func (db *DB) CurrentInventoryState(ctx context.Context, userID, productID string) (domain.InventoryState, error) {
	var state string
	err := db.db.QueryRowContext(ctx, `
		SELECT state FROM inventory WHERE user_id = ? AND product_id = ?
	`, userID, productID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateUnknown, nil
	}
	if err != nil {
		return domain.StateUnknown, fmt.Errorf("load inventory state: %w", err)
	}
	return domain.InventoryState(state), nil
}

// ─── Inventory Log ──────────────────────────────────────────────────────────

// InsertInventoryLog appends one log row, minting its id.
func (db *DB) InsertInventoryLog(ctx context.Context, entry *domain.InventoryLogEntry) (string, error) {
	logID := entry.LogID
	if logID == "" {
		logID = uuid.NewString()
	}
	var delta *string
	if entry.DeltaState != nil {
		v := string(*entry.DeltaState)
		delta = &v
	}
	var note *string
	if entry.Note != "" {
		note = &entry.Note
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO inventory_log
			(log_id, user_id, product_id, action, delta_state, action_confidence, occurred_at, source, note, receipt_item_id, shopping_list_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, logID, entry.UserID, entry.ProductID, string(entry.Action), delta, entry.ActionConfidence,
		formatTime(entry.OccurredAt), string(entry.Source), note, entry.ReceiptItemID, entry.ShoppingListItemID)
	if err != nil {
		return "", fmt.Errorf("insert log row: %w", err)
	}
	return logID, nil
}

// InventoryLogRow loads one log row, or ErrLogRowNotFound.
func (db *DB) InventoryLogRow(ctx context.Context, logID string) (*domain.InventoryLogEntry, error) {
	var (
		entry      domain.InventoryLogEntry
		delta      sql.NullString
		occurredAt string
		note       sql.NullString
		action     string
		source     string
		receipt    sql.NullString
		shopping   sql.NullString
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT log_id, user_id, product_id, action, delta_state, action_confidence, occurred_at, source, note, receipt_item_id, shopping_list_item_id
		FROM inventory_log
		WHERE log_id = ?
	`, logID).Scan(&entry.LogID, &entry.UserID, &entry.ProductID, &action, &delta,
		&entry.ActionConfidence, &occurredAt, &source, &note, &receipt, &shopping)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLogRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load log row: %w", err)
	}
	entry.Action = domain.InventoryAction(action)
	entry.Source = domain.InventorySource(source)
	entry.OccurredAt = parseStoredTime(occurredAt)
	if delta.Valid {
		v := domain.InventoryState(delta.String)
		entry.DeltaState = &v
	}
	if note.Valid {
		entry.Note = note.String
	}
	if receipt.Valid {
		v := receipt.String
		entry.ReceiptItemID = &v
	}
	if shopping.Valid {
		v := shopping.String
		entry.ShoppingListItemID = &v
	}
	return &entry, nil
}

// FirstLogOccurredAt returns the earliest occurred_at for the pair, nil
// when no rows exist.
func (db *DB) FirstLogOccurredAt(ctx context.Context, userID, productID string) (*time.Time, error) {
	var earliest sql.NullString
	err := db.db.QueryRowContext(ctx, `
		SELECT MIN(occurred_at) FROM inventory_log WHERE user_id = ? AND product_id = ?
	`, userID, productID).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("first log lookup: %w", err)
	}
	if !earliest.Valid {
		return nil, nil
	}
	t := parseStoredTime(earliest.String)
	return &t, nil
}

// ─── Forecasts ──────────────────────────────────────────────────────────────

// InsertForecast appends a forecast snapshot.
func (db *DB) InsertForecast(ctx context.Context, userID, productID string, f domain.Forecast, triggerLogID string) error {
	var trigger *string
	if triggerLogID != "" {
		trigger = &triggerLogID
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO inventory_forecasts
			(forecast_id, user_id, product_id, generated_at, expected_days_left, predicted_state, confidence, trigger_log_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), userID, productID, formatTime(f.GeneratedAt), f.ExpectedDaysLeft, string(f.PredictedState), f.Confidence, trigger)
	return err
}

// LatestForecast returns the most recent snapshot for the pair, or nil.
func (db *DB) LatestForecast(ctx context.Context, userID, productID string) (*domain.ForecastSnapshot, error) {
	var (
		snap        domain.ForecastSnapshot
		generatedAt string
		state       string
		trigger     sql.NullString
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT forecast_id, generated_at, expected_days_left, predicted_state, confidence, trigger_log_id
		FROM inventory_forecasts
		WHERE user_id = ? AND product_id = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`, userID, productID).Scan(&snap.ForecastID, &generatedAt, &snap.Forecast.ExpectedDaysLeft, &state, &snap.Forecast.Confidence, &trigger)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest forecast: %w", err)
	}
	snap.UserID = userID
	snap.ProductID = productID
	snap.Forecast.PredictedState = domain.InventoryState(state)
	snap.Forecast.GeneratedAt = parseStoredTime(generatedAt)
	if trigger.Valid {
		snap.TriggerLogID = trigger.String
	}
	return &snap, nil
}

// ─── Habits ─────────────────────────────────────────────────────────────────

// ActiveHabitEffects returns the effects of habits that are ACTIVE and in
// date range at now.
func (db *DB) ActiveHabitEffects(ctx context.Context, userID string, now time.Time) ([]domain.HabitEffects, error) {
	ts := formatTime(now)
	rows, err := db.db.QueryContext(ctx, `
		SELECT effects
		FROM habits
		WHERE user_id = ?
		  AND status = 'ACTIVE'
		  AND (start_date IS NULL OR start_date <= ?)
		  AND (end_date IS NULL OR end_date >= ?)
	`, userID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []domain.HabitEffects
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, domain.ParseHabitEffects([]byte(raw)))
	}
	return out, rows.Err()
}

// InsertHabit creates a habit, minting its id.
func (db *DB) InsertHabit(ctx context.Context, h *domain.Habit) (string, error) {
	habitID := h.HabitID
	if habitID == "" {
		habitID = uuid.NewString()
	}
	effects, err := json.Marshal(h.Effects)
	if err != nil {
		return "", fmt.Errorf("encode habit effects: %w", err)
	}
	var start, end *string
	if h.StartDate != nil {
		v := formatTime(*h.StartDate)
		start = &v
	}
	if h.EndDate != nil {
		v := formatTime(*h.EndDate)
		end = &v
	}
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = db.db.ExecContext(ctx, `
		INSERT INTO habits (habit_id, user_id, type, status, name, effects, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, habitID, h.UserID, h.Type, string(h.Status), h.Name, string(effects), start, end, formatTime(createdAt))
	if err != nil {
		return "", fmt.Errorf("insert habit: %w", err)
	}
	return habitID, nil
}

// Habit loads one habit, or ErrHabitNotFound.
func (db *DB) Habit(ctx context.Context, userID, habitID string) (*domain.Habit, error) {
	var (
		h         domain.Habit
		status    string
		name      sql.NullString
		effects   string
		start     sql.NullString
		end       sql.NullString
		createdAt string
	)
	err := db.db.QueryRowContext(ctx, `
		SELECT habit_id, user_id, type, status, name, effects, start_date, end_date, created_at
		FROM habits
		WHERE habit_id = ? AND user_id = ?
	`, habitID, userID).Scan(&h.HabitID, &h.UserID, &h.Type, &status, &name, &effects, &start, &end, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrHabitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load habit: %w", err)
	}
	h.Status = domain.HabitStatus(status)
	h.Effects = domain.ParseHabitEffects([]byte(effects))
	h.CreatedAt = parseStoredTime(createdAt)
	if name.Valid {
		h.Name = name.String
	}
	if start.Valid {
		t := parseStoredTime(start.String)
		h.StartDate = &t
	}
	if end.Valid {
		t := parseStoredTime(end.String)
		h.EndDate = &t
	}
	return &h, nil
}

// ListHabits returns the user's habits, oldest first.
func (db *DB) ListHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT habit_id FROM habits WHERE user_id = ? ORDER BY created_at, habit_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Habit, 0, len(ids))
	for _, id := range ids {
		h, err := db.Habit(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

// DeleteHabit removes one habit, or ErrHabitNotFound.
func (db *DB) DeleteHabit(ctx context.Context, userID, habitID string) error {
	res, err := db.db.ExecContext(ctx, `
		DELETE FROM habits WHERE habit_id = ? AND user_id = ?
	`, habitID, userID)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrHabitNotFound
	}
	return nil
}
