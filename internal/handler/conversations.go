package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zuora-seed/catalog-assistant/internal/middleware"
	"github.com/zuora-seed/catalog-assistant/internal/store"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

// ConversationHandler manages conversation lifecycle endpoints.
type ConversationHandler struct {
	workspaces *workspace.Manager
	logger     *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(workspaces *workspace.Manager, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{workspaces: workspaces, logger: log}
}

// List returns all conversations, most recently updated first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	resp, err := ws.ListConversations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create starts a fresh conversation and makes it active.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	view, err := ws.CreateConversation()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Active returns the active conversation with its transcript and steps.
func (h *ConversationHandler) Active(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	view, err := ws.ActiveView()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Select switches the active conversation.
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	view, err := ws.SelectConversation(id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to select conversation")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Delete removes a conversation. Deleting the active conversation responds
// with the fresh conversation that replaced it.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	view, err := ws.DeleteConversation(id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
