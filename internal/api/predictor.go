package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pantrylab/pantryd/internal/domain"
)

// ─── Predictor Surface ──────────────────────────────────────────────────────

// handleProcessLog dispatches one log row inline. Unlike the background
// worker this surfaces errors, so operators can replay a row and see why it
// fails.
// POST /api/v1/predictor/process-log/{logID}
func (s *Server) handleProcessLog(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	if err := s.dispatch.Process(r.Context(), logID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"log_id": logID, "status": "processed"})
}

// handleRefreshUser recomputes every forecast for a user, typically fired
// on login.
// POST /api/v1/predictor/refresh/{userID}
func (s *Server) handleRefreshUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "userID")
	if err := s.refresher.RefreshUser(r.Context(), uid); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": uid, "status": "refreshed"})
}

// handleGetForecast returns the latest forecast snapshot for a product,
// with an UNKNOWN placeholder when the product was never forecast.
// GET /api/v1/predictor/forecast/{userID}/{productID}
func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "userID")
	productID := chi.URLParam(r, "productID")

	snap, err := s.store.LatestForecast(r.Context(), uid, productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"expected_days_left": 0,
			"predicted_state":    domain.StateUnknown,
			"confidence":         0.0,
			"generated_at":       nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"forecast_id":        snap.ForecastID,
		"expected_days_left": snap.Forecast.ExpectedDaysLeft,
		"predicted_state":    snap.Forecast.PredictedState,
		"confidence":         snap.Forecast.Confidence,
		"generated_at":       snap.Forecast.GeneratedAt,
		"trigger_log_id":     snap.TriggerLogID,
	})
}
