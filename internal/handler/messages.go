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

// MessageHandler processes chat turns and quick actions.
type MessageHandler struct {
	workspaces *workspace.Manager
	logger     *logger.Logger
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(workspaces *workspace.Manager, log *logger.Logger) *MessageHandler {
	return &MessageHandler{workspaces: workspaces, logger: log}
}

// Send processes one user message against the active conversation.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	resp, err := ws.HandleMessage(r.Context(), req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var actionKinds = map[string]model.FlowKind{
	"create-product": model.FlowCreateProduct,
	"update-product": model.FlowUpdateProduct,
	"expire-product": model.FlowExpireProduct,
	"view-product":   model.FlowViewProduct,
}

// StartAction begins a quick action by name.
func (h *MessageHandler) StartAction(w http.ResponseWriter, r *http.Request) {
	kind, ok := actionKinds[chi.URLParam(r, "kind")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	resp, err := ws.StartAction(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start action")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CompletedFlows returns the archived wizard transcripts.
func (h *MessageHandler) CompletedFlows(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"flows": ws.CompletedFlows(),
	})
}
