package handler

import (
	"net/http"

	"github.com/zuora-seed/catalog-assistant/internal/middleware"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

// ExecuteHandler submits the staged batch to the execution service.
type ExecuteHandler struct {
	workspaces *workspace.Manager
	logger     *logger.Logger
}

// NewExecuteHandler creates an execute handler.
func NewExecuteHandler(workspaces *workspace.Manager, log *logger.Logger) *ExecuteHandler {
	return &ExecuteHandler{workspaces: workspaces, logger: log}
}

// Execute runs the active conversation's staged batch. Local validation
// failures and remote failures both come back as 200 with an error toast;
// the response body tells the client what to show.
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.Get(middleware.GetTenantID(r.Context()))
	resp, err := ws.Execute(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
