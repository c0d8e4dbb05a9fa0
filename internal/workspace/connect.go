package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/pkg/metrics"
)

var validEnvironments = map[string]bool{
	model.EnvAPISandbox: true,
	model.EnvSandbox:    true,
	model.EnvProduction: true,
}

// validateCredentials returns inline field errors for the connect form.
func validateCredentials(creds model.Credentials) map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(creds.ClientID) == "" {
		errs["clientId"] = "Client ID is required"
	}
	if strings.TrimSpace(creds.ClientSecret) == "" {
		errs["clientSecret"] = "Client Secret is required"
	}
	if !validEnvironments[creds.Environment] {
		errs["environment"] = "Select a valid environment"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Connect exchanges credentials for a token and marks the workspace
// connected. A connect while already connected re-exchanges and replaces the
// token; the transcript only announces the first success.
func (w *Workspace) Connect(ctx context.Context, creds model.Credentials) (*model.ConnectResponse, error) {
	if fieldErrs := validateCredentials(creds); fieldErrs != nil {
		return &model.ConnectResponse{FieldErrors: fieldErrs}, nil
	}

	w.mu.Lock()
	wasConnected := w.connected
	convID, err := w.ensureActive()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}

	token, exchangeErr := w.deps.Tokens.Exchange(ctx, creds)
	if exchangeErr != nil {
		metrics.ConnectAttemptsTotal.WithLabelValues(creds.Environment, "failure").Inc()
		w.log().Warn("token exchange failed",
			zap.String("tenant_id", w.tenantID),
			zap.String("environment", creds.Environment),
			zap.Error(exchangeErr),
		)

		reply := w.assistantMessage(fmt.Sprintf("Connection failed: %v", exchangeErr), false)
		w.mu.Lock()
		_, appendErr := w.deps.Store.AppendMessages(w.tenantID, convID, reply)
		w.mu.Unlock()
		if appendErr != nil {
			return nil, appendErr
		}

		return &model.ConnectResponse{
			Connection: model.ConnectionState{Connected: false},
			Toast:      &model.Toast{Message: fmt.Sprintf("Connection failed: %v", exchangeErr), Type: model.ToastError},
			Message:    &reply,
		}, nil
	}

	metrics.ConnectAttemptsTotal.WithLabelValues(creds.Environment, "success").Inc()

	w.mu.Lock()
	w.connected = true
	w.creds = creds
	w.token = token
	state := w.connectionStateLocked()
	w.mu.Unlock()

	resp := &model.ConnectResponse{
		Connection: state,
		Toast:      &model.Toast{Message: "Successfully connected to Zuora!", Type: model.ToastSuccess},
	}
	if !wasConnected {
		reply := w.assistantMessage("Great, you're connected to Zuora! What would you like to do with your Product Catalog?", false)
		w.mu.Lock()
		_, appendErr := w.deps.Store.AppendMessages(w.tenantID, convID, reply)
		w.mu.Unlock()
		if appendErr != nil {
			return nil, appendErr
		}
		resp.Message = &reply
	}

	w.publishEvent(ctx, model.WorkspaceEvent{
		ID:        uuid.NewString(),
		TenantID:  w.tenantID,
		Type:      model.EventConnected,
		Metadata:  map[string]any{"environment": creds.Environment},
		CreatedAt: time.Now().UTC(),
	})
	return resp, nil
}

// Disconnect drops the token and connection state.
func (w *Workspace) Disconnect(ctx context.Context) model.ConnectionState {
	w.mu.Lock()
	w.connected = false
	w.creds = model.Credentials{}
	w.token = nil
	state := w.connectionStateLocked()
	w.mu.Unlock()

	w.publishEvent(ctx, model.WorkspaceEvent{
		ID:        uuid.NewString(),
		TenantID:  w.tenantID,
		Type:      model.EventDisconnected,
		CreatedAt: time.Now().UTC(),
	})
	return state
}

// Connection reports the current connection state.
func (w *Workspace) Connection() model.ConnectionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connectionStateLocked()
}

func (w *Workspace) connectionStateLocked() model.ConnectionState {
	state := model.ConnectionState{Connected: w.connected}
	if w.connected {
		state.Environment = w.creds.Environment
		if w.token != nil {
			state.BaseURL = w.token.BaseURL
			state.ExpiresIn = w.token.ExpiresIn
		}
	}
	return state
}

func (w *Workspace) publishEvent(ctx context.Context, event model.WorkspaceEvent) {
	if w.deps.Events == nil {
		return
	}
	w.deps.Events.Publish(ctx, event)
}
