package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body. Encoding failures after the
// status header is written can only be logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Global().Warn("failed to encode response body", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
