// Package memstore is a thread-safe in-memory implementation of the
// repository boundary. It backs the pipeline tests and mirrors the sqlite
// repository's observable behavior, including lazy profile creation and
// last-writer-wins upserts.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

type pairKey struct {
	userID    string
	productID string
}

// Store is the in-memory repository.
type Store struct {
	mu sync.RWMutex

	profiles  map[string]*domain.Profile
	products  map[string][]domain.ProductRef
	states    map[pairKey]*domain.PredictorStateRow
	inventory map[pairKey]*domain.InventoryRow
	logs      map[string]*domain.InventoryLogEntry
	logOrder  []string
	forecasts []domain.ForecastSnapshot
	habits    map[string]*domain.Habit

	// Error injection for failure-path tests. A non-nil value makes the
	// matching method group fail.
	HabitsErr error
	StateErr  error
	WriteErr  error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles:  make(map[string]*domain.Profile),
		products:  make(map[string][]domain.ProductRef),
		states:    make(map[pairKey]*domain.PredictorStateRow),
		inventory: make(map[pairKey]*domain.InventoryRow),
		logs:      make(map[string]*domain.InventoryLogEntry),
		habits:    make(map[string]*domain.Habit),
	}
}

// ─── Seeding Helpers ────────────────────────────────────────────────────────

// AddProduct registers a product in a user's inventory with an UNKNOWN row.
func (s *Store) AddProduct(userID, productID string, categoryID *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[userID] = append(s.products[userID], domain.ProductRef{ProductID: productID, CategoryID: categoryID})
	key := pairKey{userID, productID}
	if _, ok := s.inventory[key]; !ok {
		s.inventory[key] = &domain.InventoryRow{
			UserID:    userID,
			ProductID: productID,
			State:     domain.StateUnknown,
			QtyUnit:   "days",
		}
	}
}

// SetInventory overwrites an inventory row's state and estimate directly.
func (s *Store) SetInventory(userID, productID string, state domain.InventoryState, daysLeft *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{userID, productID}
	row, ok := s.inventory[key]
	if !ok {
		row = &domain.InventoryRow{UserID: userID, ProductID: productID, QtyUnit: "days"}
		s.inventory[key] = row
	}
	row.State = state
	row.EstimatedQty = daysLeft
}

// SetProfileConfig overrides the config document of the user's profile.
func (s *Store) SetProfileConfig(userID string, config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	p.Config = config
}

// Forecasts returns a copy of all snapshots for inspection.
func (s *Store) Forecasts() []domain.ForecastSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ForecastSnapshot, len(s.forecasts))
	copy(out, s.forecasts)
	return out
}

// ─── Profiles ───────────────────────────────────────────────────────────────

func (s *Store) profileLocked(userID string) *domain.Profile {
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	p := &domain.Profile{
		ProfileID: uuid.NewString(),
		UserID:    userID,
		Method:    "EMA",
		Config:    predictor.DefaultConfig().ToJSON(),
	}
	s.profiles[userID] = p
	return p
}

func (s *Store) ActiveProfile(_ context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(userID), nil
}

// ─── Products / Users ───────────────────────────────────────────────────────

func (s *Store) UserInventoryProducts(_ context.Context, userID string) ([]domain.ProductRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProductRef, len(s.products[userID]))
	copy(out, s.products[userID])
	return out, nil
}

func (s *Store) UsersWithInventory(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.products))
	for u := range s.products {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

// ─── Predictor State ────────────────────────────────────────────────────────

func (s *Store) PredictorState(_ context.Context, userID, productID string) (*domain.PredictorStateRow, error) {
	if s.StateErr != nil {
		return nil, s.StateErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.states[pairKey{userID, productID}]
	if !ok {
		return nil, nil
	}
	cp := *row
	cp.ParamsJSON = append([]byte(nil), row.ParamsJSON...)
	return &cp, nil
}

func (s *Store) UpsertPredictorState(_ context.Context, userID, productID, profileID string, paramsJSON []byte, confidence float64, updatedAt time.Time) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[pairKey{userID, productID}] = &domain.PredictorStateRow{
		ParamsJSON: append([]byte(nil), paramsJSON...),
		Confidence: confidence,
		UpdatedAt:  updatedAt,
		ProfileID:  profileID,
	}
	return nil
}

// ─── Inventory ──────────────────────────────────────────────────────────────

func (s *Store) UpsertInventoryEstimate(_ context.Context, userID, productID string, daysLeft float64, state domain.InventoryState, confidence float64, source domain.InventorySource, displayedName string) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{userID, productID}
	row, ok := s.inventory[key]
	if !ok {
		row = &domain.InventoryRow{UserID: userID, ProductID: productID}
		s.inventory[key] = row
	}
	d := daysLeft
	row.State = state
	row.EstimatedQty = &d
	row.QtyUnit = "days"
	row.Confidence = confidence
	row.LastSource = source
	row.LastUpdatedAt = time.Now().UTC()
	if displayedName != "" {
		row.DisplayedName = displayedName
	}
	return nil
}

func (s *Store) InventoryItem(_ context.Context, userID, productID string) (*domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.inventory[pairKey{userID, productID}]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *row
	if row.EstimatedQty != nil {
		v := *row.EstimatedQty
		cp.EstimatedQty = &v
	}
	return &cp, nil
}

func (s *Store) CurrentInventoryState(_ context.Context, userID, productID string) (domain.InventoryState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.inventory[pairKey{userID, productID}]
	if !ok {
		return domain.StateUnknown, nil
	}
	return row.State, nil
}

// ─── Inventory Log ──────────────────────────────────────────────────────────

func (s *Store) InsertInventoryLog(_ context.Context, entry *domain.InventoryLogEntry) (string, error) {
	if s.WriteErr != nil {
		return "", s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if cp.LogID == "" {
		cp.LogID = uuid.NewString()
	}
	s.logs[cp.LogID] = &cp
	s.logOrder = append(s.logOrder, cp.LogID)
	return cp.LogID, nil
}

func (s *Store) InventoryLogRow(_ context.Context, logID string) (*domain.InventoryLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.logs[logID]
	if !ok {
		return nil, domain.ErrLogRowNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) FirstLogOccurredAt(_ context.Context, userID, productID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest *time.Time
	for _, id := range s.logOrder {
		row := s.logs[id]
		if row.UserID != userID || row.ProductID != productID {
			continue
		}
		if earliest == nil || row.OccurredAt.Before(*earliest) {
			t := row.OccurredAt
			earliest = &t
		}
	}
	return earliest, nil
}

// ─── Forecasts ──────────────────────────────────────────────────────────────

func (s *Store) InsertForecast(_ context.Context, userID, productID string, f domain.Forecast, triggerLogID string) error {
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, domain.ForecastSnapshot{
		ForecastID:   uuid.NewString(),
		UserID:       userID,
		ProductID:    productID,
		Forecast:     f,
		TriggerLogID: triggerLogID,
	})
	return nil
}

func (s *Store) LatestForecast(_ context.Context, userID, productID string) (*domain.ForecastSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.forecasts) - 1; i >= 0; i-- {
		if s.forecasts[i].UserID == userID && s.forecasts[i].ProductID == productID {
			cp := s.forecasts[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// ─── Habits ─────────────────────────────────────────────────────────────────

func (s *Store) ActiveHabitEffects(_ context.Context, userID string, now time.Time) ([]domain.HabitEffects, error) {
	if s.HabitsErr != nil {
		return nil, s.HabitsErr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.HabitEffects
	for _, h := range s.habits {
		if h.UserID == userID && h.ActiveAt(now) {
			out = append(out, h.Effects)
		}
	}
	return out, nil
}

func (s *Store) InsertHabit(_ context.Context, h *domain.Habit) (string, error) {
	if s.WriteErr != nil {
		return "", s.WriteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	if cp.HabitID == "" {
		cp.HabitID = uuid.NewString()
	}
	s.habits[cp.HabitID] = &cp
	return cp.HabitID, nil
}

func (s *Store) Habit(_ context.Context, userID, habitID string) (*domain.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.habits[habitID]
	if !ok || h.UserID != userID {
		return nil, domain.ErrHabitNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *Store) ListHabits(_ context.Context, userID string) ([]domain.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Habit
	for _, h := range s.habits {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteHabit(_ context.Context, userID, habitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[habitID]
	if !ok || h.UserID != userID {
		return domain.ErrHabitNotFound
	}
	delete(s.habits, habitID)
	return nil
}
