package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pantrylab/pantryd/internal/domain"
	"github.com/pantrylab/pantryd/internal/predictor"
)

// ─── Log Ingest ─────────────────────────────────────────────────────────────

type createLogRequest struct {
	ProductID        string                 `json:"product_id"`
	Action           domain.InventoryAction `json:"action"`
	DeltaState       *domain.InventoryState `json:"delta_state,omitempty"`
	ActionConfidence *float64               `json:"action_confidence,omitempty"`
	OccurredAt       *string                `json:"occurred_at,omitempty"`
	Source           *string                `json:"source,omitempty"`
	Note             string                 `json:"note,omitempty"`
}

// handleCreateLog appends an inventory log row and schedules its dispatch
// exactly once in the background.
// POST /api/v1/inventory/log
func (s *Server) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "missing X-User-ID")
		return
	}

	var req createLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProductID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "product_id and action are required")
		return
	}

	occurredAt := s.Now().UTC()
	if req.OccurredAt != nil {
		t, ok := predictor.ParseTimestamp(*req.OccurredAt)
		if !ok {
			writeError(w, http.StatusBadRequest, "unparseable occurred_at")
			return
		}
		occurredAt = t
	}
	source := domain.SourceManual
	if req.Source != nil {
		source = domain.InventorySource(strings.ToUpper(*req.Source))
	}
	confidence := 1.0
	if req.ActionConfidence != nil {
		confidence = *req.ActionConfidence
	}

	logID, err := s.store.InsertInventoryLog(r.Context(), &domain.InventoryLogEntry{
		UserID:           uid,
		ProductID:        req.ProductID,
		Action:           req.Action,
		DeltaState:       req.DeltaState,
		ActionConfidence: confidence,
		OccurredAt:       occurredAt,
		Source:           source,
		Note:             req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.worker.Enqueue(logID)
	writeJSON(w, http.StatusCreated, map[string]string{"log_id": logID})
}

// handleGetItem returns the current inventory row.
// GET /api/v1/inventory/{productID}
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	row, err := s.store.InventoryItem(r.Context(), uid, chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ─── MORE / LESS Feedback ───────────────────────────────────────────────────

// handleFeedback records a MORE/LESS signal and immediately reshapes the
// published days_left. The learned cycle_mean_days is deliberately left
// alone: it is only revised from observed cycles.
// POST /api/v1/inventory/{productID}/feedback?direction=more|less
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	productID := chi.URLParam(r, "productID")
	direction := strings.ToLower(r.URL.Query().Get("direction"))
	if direction != "more" && direction != "less" {
		writeDomainError(w, domain.ErrInvalidFeedback)
		return
	}

	ctx := r.Context()
	item, err := s.store.InventoryItem(ctx, uid, productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	now := s.Now().UTC()

	// Log the signal. The shaping below is the whole effect; the row is the
	// audit trail.
	rank := item.State.Rank()
	var note string
	if direction == "more" {
		rank = min(rank+1, domain.StateFull.Rank())
		note = "User feedback: More stock needed"
	} else {
		rank = max(rank-1, domain.StateEmpty.Rank())
		note = "User feedback: Less stock needed"
	}
	delta := stateForRank(rank)
	logID, err := s.store.InsertInventoryLog(ctx, &domain.InventoryLogEntry{
		UserID:           uid,
		ProductID:        productID,
		Action:           domain.ActionAdjust,
		DeltaState:       &delta,
		ActionConfidence: 1.0,
		OccurredAt:       now,
		Source:           domain.SourceManual,
		Note:             note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile, err := s.store.ActiveProfile(ctx, uid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cfg := predictor.ConfigFromJSON(profile.Config)
	categoryID := s.categoryOf(ctx, uid, productID)
	state := s.loadOrInitState(ctx, uid, productID, cfg, categoryID, now)

	mult := s.habits.Multiplier(ctx, uid, productID, categoryID, now)
	currentDays := state.ComputeDaysLeft(now, mult, cfg, item.EstimatedQty)
	isEmpty := currentDays <= 0.01 || item.State == domain.StateEmpty

	var newDays float64
	switch {
	case isEmpty && direction == "more":
		// The user says there is some again: restart at a modest fraction
		// of the learned cycle and drop the empty mark.
		if state.CycleMeanDays > 0 {
			newDays = state.CycleMeanDays * 0.15
		} else {
			newDays = 1.5
		}
		state.EmptyAt = nil
	case isEmpty:
		newDays = 0
	case direction == "more":
		newDays = currentDays * 1.15
	default:
		newDays = currentDays * 0.85
	}
	if newDays < 0 {
		newDays = 0
	}

	newState := predictor.DeriveState(newDays, state.CycleMeanDays, cfg)
	state.LastPredDaysLeft = &newDays
	state.LastFeedbackAt = &now
	state.LastUpdateAt = now
	confidence := state.ComputeConfidence(now, cfg)

	params, err := state.EncodeParams()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.UpsertPredictorState(ctx, uid, productID, profile.ProfileID, params, confidence, now); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.UpsertInventoryEstimate(ctx, uid, productID, newDays, newState, confidence, domain.SourceManual, ""); err != nil {
		writeDomainError(w, err)
		return
	}
	forecast := domain.Forecast{
		ExpectedDaysLeft: newDays,
		PredictedState:   newState,
		Confidence:       confidence,
		GeneratedAt:      now,
	}
	if err := s.store.InsertForecast(ctx, uid, productID, forecast, logID); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"log_id":             logID,
		"expected_days_left": newDays,
		"state":              newState,
	})
}

// ─── Product Actions ────────────────────────────────────────────────────────

type actionRequest struct {
	ActionType   string `json:"action_type"`
	Reason       string `json:"reason"`
	CustomReason string `json:"custom_reason,omitempty"`
}

// handleAction handles the three quick actions from the product card:
// thrown_away, ran_out, and repurchased. It writes the matching log row and
// schedules the predictor update in the background; for a repurchase the
// coarse state is captured before the inventory mutation so the purchase is
// judged against the shelf as the user saw it.
// POST /api/v1/inventory/{productID}/action
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	productID := chi.URLParam(r, "productID")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	fullReason := req.Reason
	if custom := strings.TrimSpace(req.CustomReason); custom != "" {
		fullReason = req.Reason + ": " + custom
	}

	ctx := r.Context()
	item, err := s.store.InventoryItem(ctx, uid, productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	priorState := item.State
	now := s.Now().UTC()
	deltaEmpty := domain.StateEmpty
	deltaFull := domain.StateFull

	var entry domain.InventoryLogEntry
	switch strings.ToLower(req.ActionType) {
	case "thrown_away":
		entry = domain.InventoryLogEntry{
			Action:     domain.ActionTrash,
			DeltaState: &deltaEmpty,
			Note:       "WASTED: " + fullReason,
		}
	case "ran_out":
		entry = domain.InventoryLogEntry{
			Action:     domain.ActionEmpty,
			DeltaState: &deltaEmpty,
			Note:       "EMPTY: " + fullReason,
		}
	case "repurchased":
		entry = domain.InventoryLogEntry{
			Action:     domain.ActionRepurchase,
			DeltaState: &deltaFull,
			Note:       "PURCHASE: " + fullReason,
		}
	default:
		writeDomainError(w, domain.ErrUnknownAction)
		return
	}

	entry.UserID = uid
	entry.ProductID = productID
	entry.ActionConfidence = 1.0
	entry.OccurredAt = now
	entry.Source = domain.SourceManual

	logID, err := s.store.InsertInventoryLog(ctx, &entry)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Reflect the action on the inventory row right away; the background
	// dispatch recomputes the estimate from the model.
	if entry.Action != domain.ActionRepurchase {
		if err := s.store.UpsertInventoryEstimate(ctx, uid, productID, 0, domain.StateEmpty, 1.0, domain.SourceManual, ""); err != nil {
			s.log.Warn().Err(err).Str("product_id", productID).Msg("inventory state update failed")
		}
	}

	if entry.Action == domain.ActionRepurchase {
		s.worker.EnqueueWithPriorState(logID, priorState)
	} else {
		s.worker.Enqueue(logID)
	}

	writeJSON(w, http.StatusCreated, map[string]string{"log_id": logID})
}

// ─── Shared Loaders ─────────────────────────────────────────────────────────

func (s *Server) categoryOf(ctx context.Context, uid, productID string) *string {
	products, err := s.store.UserInventoryProducts(ctx, uid)
	if err != nil {
		return nil
	}
	for _, p := range products {
		if p.ProductID == productID {
			return p.CategoryID
		}
	}
	return nil
}

func (s *Server) loadOrInitState(ctx context.Context, uid, productID string, cfg predictor.Config, categoryID *string, now time.Time) *predictor.CycleState {
	row, err := s.store.PredictorState(ctx, uid, productID)
	if err != nil || row == nil {
		return predictor.InitFromCategory(categoryID, cfg, now)
	}
	state, err := predictor.DecodeParams(row.ParamsJSON, now)
	if err != nil {
		s.log.Warn().Err(err).Str("product_id", productID).Msg("malformed predictor state, reseeding")
		return predictor.InitFromCategory(categoryID, cfg, now)
	}
	if state.CategoryID == nil && categoryID != nil {
		v := *categoryID
		state.CategoryID = &v
	}
	return state
}

func stateForRank(rank int) domain.InventoryState {
	switch rank {
	case 0:
		return domain.StateEmpty
	case 1:
		return domain.StateLow
	case 2:
		return domain.StateMedium
	default:
		return domain.StateFull
	}
}
