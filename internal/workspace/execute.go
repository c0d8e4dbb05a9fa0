package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/staging"
	"github.com/zuora-seed/catalog-assistant/internal/zuora"
	"github.com/zuora-seed/catalog-assistant/pkg/metrics"
)

// Execute submits the staged batch to the execution service. All local
// validation (parse state, required fragments) happens before any network
// call; a batch with problems never leaves the process.
func (w *Workspace) Execute(ctx context.Context) (*model.ExecuteResponse, error) {
	w.mu.Lock()
	convID, err := w.ensureActive()
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	cs := w.conv(convID)

	if !w.connected {
		resp, err := w.executeFailureLocked(convID, NotConnectedReply)
		w.mu.Unlock()
		return resp, err
	}
	if len(cs.steps) == 0 {
		resp, err := w.executeFailureLocked(convID, "No payload steps staged yet. Ask me to create a product first.")
		w.mu.Unlock()
		return resp, err
	}

	prepared, prepErr := staging.Prepare(cs.steps, cs.raw)
	if prepErr != nil {
		resp, err := w.executeFailureLocked(convID, fmt.Sprintf("❌ %v", prepErr))
		w.mu.Unlock()
		return resp, err
	}

	mode := "classic"
	if prepared.Direct != nil {
		mode = "direct"
	} else if prepared.Product == nil {
		resp, err := w.executeFailureLocked(convID, "❌ Cannot execute: no Product payload staged.")
		w.mu.Unlock()
		return resp, err
	}

	creds := w.creds
	epoch := cs.epoch
	w.mu.Unlock()

	var result *model.ExecutionResult
	var execErr error
	switch mode {
	case "direct":
		result, execErr = w.deps.Executor.ExecuteDirect(ctx, zuora.DirectRequest{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Payloads:     prepared.Direct,
			Environment:  creds.Environment,
		})
	default:
		result, execErr = w.deps.Executor.ExecuteClassic(ctx, zuora.ClassicRequest{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Environment:  creds.Environment,
			Body: zuora.ClassicBody{
				Product:        prepared.Product,
				RatePlan:       prepared.RatePlan,
				RatePlanCharge: prepared.Charges,
			},
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeID != convID || w.conv(convID).epoch != epoch {
		w.logDiscard(convID, epoch)
		return nil, fmt.Errorf("conversation changed during execution")
	}
	cs = w.conv(convID)

	if execErr != nil {
		metrics.ExecutionsTotal.WithLabelValues(mode, "failure").Inc()
		w.log().Warn("execution failed",
			zap.String("tenant_id", w.tenantID),
			zap.String("mode", mode),
			zap.Error(execErr),
		)
		w.publishEvent(ctx, model.WorkspaceEvent{
			ID:             uuid.NewString(),
			TenantID:       w.tenantID,
			ConversationID: convID,
			Type:           model.EventExecutionFailure,
			Reason:         execErr.Error(),
			Metadata:       map[string]any{"mode": mode},
			CreatedAt:      time.Now().UTC(),
		})
		return w.executeFailureLocked(convID, fmt.Sprintf("❌ Execution failed: %v", execErr))
	}

	metrics.ExecutionsTotal.WithLabelValues(mode, "success").Inc()
	if result.ProductID != "" {
		result.ConsoleURL = zuora.ConsoleProductURL(creds.Environment, result.ProductID)
	}
	cs.result = result

	message := w.assistantMessage(successText(mode, result), false)
	if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, message); err != nil {
		return nil, err
	}

	w.publishEvent(ctx, model.WorkspaceEvent{
		ID:             uuid.NewString(),
		TenantID:       w.tenantID,
		ConversationID: convID,
		Type:           model.EventExecutionSuccess,
		Metadata: map[string]any{
			"mode":       mode,
			"product_id": result.ProductID,
		},
		CreatedAt: time.Now().UTC(),
	})

	return &model.ExecuteResponse{
		Result:  result,
		Message: message,
		Toast:   model.Toast{Message: "Execution completed successfully", Type: model.ToastSuccess},
		Steps:   cs.steps,
	}, nil
}

// executeFailureLocked appends the failure reply and builds the error
// response. Callers hold w.mu.
func (w *Workspace) executeFailureLocked(convID, text string) (*model.ExecuteResponse, error) {
	message := w.assistantMessage(text, false)
	if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, message); err != nil {
		return nil, err
	}
	return &model.ExecuteResponse{
		Message: message,
		Toast:   model.Toast{Message: "Execution failed", Type: model.ToastError},
	}, nil
}

func successText(mode string, result *model.ExecutionResult) string {
	var b strings.Builder
	if mode == "direct" {
		b.WriteString("✅ Zuora calls executed successfully.")
	} else {
		b.WriteString("✅ Product created successfully!")
	}
	if result.ProductID != "" {
		fmt.Fprintf(&b, "\n\nProduct ID: %s", result.ProductID)
	}
	if len(result.RatePlanIDs) > 0 {
		fmt.Fprintf(&b, "\nRate Plan ID(s): %s", strings.Join(result.RatePlanIDs, ", "))
	}
	if len(result.ChargeIDs) > 0 {
		fmt.Fprintf(&b, "\nCharge ID(s): %s", strings.Join(result.ChargeIDs, ", "))
	}
	if result.ConsoleURL != "" {
		fmt.Fprintf(&b, "\n\nView it in Zuora: %s", result.ConsoleURL)
	}
	return b.String()
}

// Steps returns the staged batch for the active conversation.
func (w *Workspace) Steps() ([]model.StagedStep, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	convID, err := w.ensureActive()
	if err != nil {
		return nil, false, err
	}
	cs := w.conv(convID)
	return cs.steps, cs.visible, nil
}

// EditStep replaces one staged step's JSON buffer and recomputes its parse
// state. Edits live in memory; the durable batch keeps the original payloads.
func (w *Workspace) EditStep(stepID, jsonText string) (*model.StagedStep, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	convID, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	cs := w.conv(convID)

	for i := range cs.steps {
		if cs.steps[i].ID != stepID {
			continue
		}
		cs.steps[i] = staging.Edit(cs.steps[i], jsonText)
		step := cs.steps[i]
		return &step, nil
	}
	return nil, fmt.Errorf("staged step %q not found", stepID)
}

// ToggleStep flips a staged step's expanded state.
func (w *Workspace) ToggleStep(stepID string) (*model.StagedStep, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	convID, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	cs := w.conv(convID)

	for i := range cs.steps {
		if cs.steps[i].ID != stepID {
			continue
		}
		cs.steps[i].Expanded = !cs.steps[i].Expanded
		step := cs.steps[i]
		return &step, nil
	}
	return nil, fmt.Errorf("staged step %q not found", stepID)
}

// Draft builds the legacy three-buffer batch from basic product fields,
// bypassing the chat backend entirely.
func (w *Workspace) Draft(req model.DraftRequest) ([]model.StagedStep, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	convID, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	cs := w.conv(convID)

	items, err := draftItems(req)
	if err != nil {
		return nil, err
	}

	steps, normalized := staging.Ingest(items)
	cs.steps = steps
	cs.raw = normalized
	cs.visible = true
	cs.result = nil
	for _, step := range steps {
		metrics.StagedStepsTotal.WithLabelValues(step.Type).Inc()
	}

	if err := w.deps.Store.SavePayloads(w.tenantID, convID, normalized); err != nil {
		return nil, err
	}
	return steps, nil
}

func draftItems(req model.DraftRequest) ([]model.PayloadItem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New Product"
	}
	start := strings.TrimSpace(req.StartDate)
	if start == "" {
		start = time.Now().Format("2006-01-02")
	}
	ratePlanName := strings.TrimSpace(req.RatePlanName)
	if ratePlanName == "" {
		ratePlanName = "Standard Plan"
	}
	chargeName := strings.TrimSpace(req.ChargeName)
	if chargeName == "" {
		chargeName = "Monthly Charge"
	}

	product := map[string]any{
		"Name":               name,
		"SKU":                req.SKU,
		"Description":        req.Description,
		"EffectiveStartDate": start,
	}
	ratePlan := map[string]any{
		"Name":        ratePlanName,
		"Description": req.RatePlanComment,
		"ProductId":   "@{Product.Id}",
	}
	charge := map[string]any{
		"Name":              chargeName,
		"ProductRatePlanId": "@{ProductRatePlan.Id}",
		"ChargeModel":       "FlatFee",
		"ChargeType":        "Recurring",
		"BillingPeriod":     "Month",
	}

	items := make([]model.PayloadItem, 0, 3)
	for _, entry := range []struct {
		apiType string
		payload map[string]any
	}{
		{"product_create", product},
		{"rate_plan_create", ratePlan},
		{"charge_create", charge},
	} {
		raw, err := json.Marshal(entry.payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode draft payload: %w", err)
		}
		items = append(items, model.PayloadItem{ZuoraAPIType: entry.apiType, Payload: raw})
	}
	return items, nil
}
