// Package handler implements the HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/zuora-seed/catalog-assistant/internal/middleware"
	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

// ConnectionHandler manages the Zuora connection lifecycle.
type ConnectionHandler struct {
	workspaces *workspace.Manager
	logger     *logger.Logger
}

// NewConnectionHandler creates a connection handler.
func NewConnectionHandler(workspaces *workspace.Manager, log *logger.Logger) *ConnectionHandler {
	return &ConnectionHandler{workspaces: workspaces, logger: log}
}

// Get returns the current connection state.
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	writeJSON(w, http.StatusOK, ws.Connection())
}

// Connect exchanges credentials and marks the workspace connected. Form
// validation failures come back as 400 with inline field errors; a rejected
// exchange is a 200 whose body carries the failure toast and reply.
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	resp, err := ws.Connect(r.Context(), creds)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to connect")
		return
	}
	if resp.FieldErrors != nil {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Disconnect drops the connection.
func (h *ConnectionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	writeJSON(w, http.StatusOK, ws.Disconnect(r.Context()))
}
