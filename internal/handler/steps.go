package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zuora-seed/catalog-assistant/internal/middleware"
	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

// StepsHandler manages the staged payload batch.
type StepsHandler struct {
	workspaces *workspace.Manager
	logger     *logger.Logger
}

// NewStepsHandler creates a steps handler.
func NewStepsHandler(workspaces *workspace.Manager, log *logger.Logger) *StepsHandler {
	return &StepsHandler{workspaces: workspaces, logger: log}
}

// List returns the staged batch for the active conversation.
func (h *StepsHandler) List(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	steps, visible, err := ws.Steps()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"steps":        steps,
		"show_payload": visible,
	})
}

// Edit replaces one step's JSON buffer. Invalid JSON is accepted and comes
// back with json_error set; it only blocks execution, not editing.
func (h *StepsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	stepID := chi.URLParam(r, "id")
	if err := middleware.ValidateStepID(stepID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.EditStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	step, err := ws.EditStep(stepID, req.JSON)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// Toggle flips a step's expanded state.
func (h *StepsHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	stepID := chi.URLParam(r, "id")
	if err := middleware.ValidateStepID(stepID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	step, err := ws.ToggleStep(stepID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, step)
}

// Draft builds the legacy three-buffer batch from basic product fields.
func (h *StepsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	var req model.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	steps, err := ws.Draft(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to draft payloads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"steps":        steps,
		"show_payload": true,
	})
}
