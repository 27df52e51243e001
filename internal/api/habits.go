package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

// ─── Habit Surface ──────────────────────────────────────────────────────────
// Creating or deleting a habit with effects reshapes the forecasts of every
// product it touches. The refresh runs inline but its failure never fails
// the habit operation itself.

type createHabitRequest struct {
	Type      string              `json:"type"`
	Status    *domain.HabitStatus `json:"status,omitempty"`
	Name      string              `json:"name,omitempty"`
	Effects   domain.HabitEffects `json:"effects"`
	StartDate *string             `json:"start_date,omitempty"`
	EndDate   *string             `json:"end_date,omitempty"`
}

// handleCreateHabit creates a habit and rescales affected forecasts.
// POST /api/v1/habits
func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID")
		return
	}

	var req createHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	status := domain.HabitActive
	if req.Status != nil {
		status = *req.Status
	}
	habitType := req.Type
	if habitType == "" {
		habitType = "OTHER"
	}

	h := domain.Habit{
		UserID:    uid,
		Type:      habitType,
		Status:    status,
		Name:      req.Name,
		Effects:   req.Effects,
		CreatedAt: s.Now().UTC(),
	}
	if req.StartDate != nil {
		if t, ok := predictor.ParseTimestamp(*req.StartDate); ok {
			h.StartDate = &t
		}
	}
	if req.EndDate != nil {
		if t, ok := predictor.ParseTimestamp(*req.EndDate); ok {
			h.EndDate = &t
		}
	}

	habitID, err := s.store.InsertHabit(r.Context(), &h)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if status == domain.HabitActive && !req.Effects.IsZero() {
		if err := s.refresher.RefreshProductsAffectedByHabit(r.Context(), uid, req.Effects, false); err != nil {
			s.log.Error().Err(err).Str("habit_id", habitID).Msg("forecast refresh after habit creation failed")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{"habit_id": habitID})
}

// handleListHabits lists the user's habits.
// GET /api/v1/habits
func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := s.store.ListHabits(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if habits == nil {
		habits = []domain.Habit{}
	}
	writeJSON(w, http.StatusOK, habits)
}

// handleDeleteHabit deletes a habit and rescales affected forecasts back.
// DELETE /api/v1/habits/{habitID}
func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	habitID := chi.URLParam(r, "habitID")

	// Effects must be read before the row disappears.
	h, err := s.store.Habit(r.Context(), uid, habitID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.DeleteHabit(r.Context(), uid, habitID); err != nil {
		writeDomainError(w, err)
		return
	}

	if !h.Effects.IsZero() {
		if err := s.refresher.RefreshProductsAffectedByHabit(r.Context(), uid, h.Effects, true); err != nil {
			s.log.Error().Err(err).Str("habit_id", habitID).Msg("forecast refresh after habit deletion failed")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
