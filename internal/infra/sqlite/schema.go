package sqlite

// Migrations returns the schema migration statements. Each string is a
// single SQL statement.
func Migrations() []string {
	return []string{
		// Product catalog
		`CREATE TABLE IF NOT EXISTS product_categories (
			category_id   TEXT PRIMARY KEY,
			category_name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_id   TEXT PRIMARY KEY,
			product_name TEXT NOT NULL,
			category_id  TEXT REFERENCES product_categories(category_id)
		)`,

		// One active predictor profile per user
		`CREATE TABLE IF NOT EXISTS predictor_profiles (
			predictor_profile_id TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT,
			method     TEXT NOT NULL DEFAULT 'EMA',
			config     TEXT NOT NULL DEFAULT '{}',
			is_active  INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_user_active ON predictor_profiles(user_id, is_active)`,

		// Per-(user, product) predictor state; params is opaque JSON
		`CREATE TABLE IF NOT EXISTS product_predictor_state (
			user_id    TEXT NOT NULL,
			product_id TEXT NOT NULL,
			predictor_profile_id TEXT NOT NULL,
			params     TEXT NOT NULL DEFAULT '{}',
			confidence REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, product_id)
		)`,

		// Current inventory line; estimated_qty is days of supply
		`CREATE TABLE IF NOT EXISTS inventory (
			user_id         TEXT NOT NULL,
			product_id      TEXT NOT NULL,
			state           TEXT NOT NULL DEFAULT 'UNKNOWN',
			estimated_qty   REAL,
			qty_unit        TEXT NOT NULL DEFAULT 'days',
			confidence      REAL NOT NULL DEFAULT 0,
			last_source     TEXT NOT NULL DEFAULT 'SYSTEM',
			last_updated_at TEXT,
			displayed_name  TEXT,
			PRIMARY KEY (user_id, product_id)
		)`,

		// Append-only inventory event log; the ground truth
		`CREATE TABLE IF NOT EXISTS inventory_log (
			log_id            TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL,
			product_id        TEXT NOT NULL,
			action            TEXT NOT NULL,
			delta_state       TEXT,
			action_confidence REAL NOT NULL DEFAULT 1,
			occurred_at       TEXT NOT NULL,
			source            TEXT NOT NULL,
			note              TEXT,
			receipt_item_id        TEXT,
			shopping_list_item_id  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_user_product ON inventory_log(user_id, product_id, occurred_at)`,

		// Forecast snapshot history
		`CREATE TABLE IF NOT EXISTS inventory_forecasts (
			forecast_id        TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			product_id         TEXT NOT NULL,
			generated_at       TEXT NOT NULL,
			expected_days_left REAL NOT NULL,
			predicted_state    TEXT NOT NULL,
			confidence         REAL NOT NULL,
			trigger_log_id     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_user_product ON inventory_forecasts(user_id, product_id, generated_at)`,

		// Habits with JSON effects
		`CREATE TABLE IF NOT EXISTS habits (
			habit_id   TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL DEFAULT 'OTHER',
			status     TEXT NOT NULL DEFAULT 'ACTIVE',
			name       TEXT,
			effects    TEXT NOT NULL DEFAULT '{}',
			start_date TEXT,
			end_date   TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_user_status ON habits(user_id, status)`,
	}
}
