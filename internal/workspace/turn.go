package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zuora-seed/catalog-assistant/internal/chat"
	"github.com/zuora-seed/catalog-assistant/internal/flow"
	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/staging"
	"github.com/zuora-seed/catalog-assistant/pkg/metrics"
)

// HandleMessage processes one user turn. The scripted wizard advance and the
// chat backend call run concurrently off the same input: scripted replies
// resolve locally while the backend round-trip is in flight, and the backend
// reply is merged in afterwards. A reply that lands after the conversation was
// switched, reset, or deleted is discarded.
func (w *Workspace) HandleMessage(ctx context.Context, content string) (*model.TurnResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content is empty")
	}

	w.mu.Lock()
	convID, err := w.ensureActive()
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}
	cs := w.conv(convID)

	userMsg := w.userMessage(content)
	if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, userMsg); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	appended := []model.ChatMessage{userMsg}

	if !w.connected {
		guard := w.assistantMessage(NotConnectedReply, false)
		_, err := w.deps.Store.AppendMessages(w.tenantID, convID, guard)
		w.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &model.TurnResponse{Messages: append(appended, guard)}, nil
	}

	epoch := cs.epoch
	turn := chat.Turn{
		Persona:        w.deps.Persona,
		Message:        content,
		ConversationID: cs.remote,
		Payloads:       staging.DenormalizeItems(cs.raw),
	}

	var reply *chat.Reply
	var respondErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		reply, respondErr = w.deps.Responder.Respond(gctx, turn)
		status := "success"
		if respondErr != nil {
			status = "failure"
		}
		metrics.RecordChatRoundTrip(w.deps.Responder.Name(), status, time.Since(start).Seconds())
		return nil
	})

	var toast *model.Toast
	if isScripted(cs.flow.Kind) {
		resp, scriptErr := w.advanceScriptedLocked(ctx, convID, cs, content, appended)
		if scriptErr != nil {
			w.mu.Unlock()
			_ = g.Wait()
			return nil, scriptErr
		}
		appended = resp.Messages
		toast = resp.Toast
	}
	w.mu.Unlock()

	_ = g.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeID != convID || w.conv(convID).epoch != epoch {
		w.logDiscard(convID, epoch)
		return &model.TurnResponse{Messages: appended, Toast: toast}, nil
	}
	cs = w.conv(convID)

	if respondErr != nil {
		errMsg := w.assistantMessage(fmt.Sprintf("Error: %v", respondErr), false)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, errMsg); err != nil {
			return nil, err
		}
		if toast == nil {
			toast = &model.Toast{Message: "Assistant request failed", Type: model.ToastError}
		}
		return &model.TurnResponse{
			Messages:    append(appended, errMsg),
			Steps:       cs.steps,
			ShowPayload: cs.visible,
			Toast:       toast,
		}, nil
	}

	if reply.Text != "" {
		assistantMsg := w.assistantMessage(reply.Text, true)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, assistantMsg); err != nil {
			return nil, err
		}
		appended = append(appended, assistantMsg)
	}
	if reply.ConversationID != "" {
		cs.remote = reply.ConversationID
	}

	if len(reply.Payloads) > 0 {
		steps, normalized := staging.Ingest(reply.Payloads)
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

		notice := w.assistantMessage(fmt.Sprintf(
			"I generated %d Zuora API payload step(s). Review them in the payload panel — you can edit any step before executing.",
			len(steps)), false)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, notice); err != nil {
			return nil, err
		}
		appended = append(appended, notice)
	}

	return &model.TurnResponse{
		Messages:    appended,
		Steps:       cs.steps,
		ShowPayload: cs.visible,
		Toast:       toast,
	}, nil
}

// StartAction begins a quick action. Create is driven by the chat backend;
// update, expire, and view run the local scripted wizards.
func (w *Workspace) StartAction(ctx context.Context, kind model.FlowKind) (*model.TurnResponse, error) {
	prompt := flow.StarterPrompt(kind)
	if prompt == "" {
		return nil, fmt.Errorf("unknown action %q", kind)
	}

	if kind == model.FlowCreateProduct {
		return w.HandleMessage(ctx, prompt)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	convID, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	cs := w.conv(convID)

	userMsg := w.userMessage(prompt)
	if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, userMsg); err != nil {
		return nil, err
	}
	appended := []model.ChatMessage{userMsg}

	if !w.connected {
		guard := w.assistantMessage(NotConnectedReply, false)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, guard); err != nil {
			return nil, err
		}
		return &model.TurnResponse{Messages: append(appended, guard)}, nil
	}

	state, replies := flow.Start(kind)
	cs.flow = state
	metrics.FlowTransitionsTotal.WithLabelValues(string(kind), flowStep(state)).Inc()

	for _, text := range replies {
		msg := w.assistantMessage(text, false)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, msg); err != nil {
			return nil, err
		}
		appended = append(appended, msg)
	}
	return &model.TurnResponse{Messages: appended, Steps: cs.steps, ShowPayload: cs.visible}, nil
}

// advanceScriptedLocked runs one scripted wizard transition. Callers hold
// w.mu; appended already contains the stored user message.
func (w *Workspace) advanceScriptedLocked(ctx context.Context, convID string, cs *convState, content string, appended []model.ChatMessage) (*model.TurnResponse, error) {
	result := flow.Advance(cs.flow, content)
	cs.flow = result.State
	metrics.FlowTransitionsTotal.WithLabelValues(string(result.State.Kind), flowStep(result.State)).Inc()

	for _, text := range result.Replies {
		msg := w.assistantMessage(text, false)
		if _, err := w.deps.Store.AppendMessages(w.tenantID, convID, msg); err != nil {
			return nil, err
		}
		appended = append(appended, msg)
	}

	if result.Completed {
		if err := w.completeFlowLocked(ctx, convID, cs, result.Summary); err != nil {
			return nil, err
		}
	}

	return &model.TurnResponse{
		Messages:    appended,
		Steps:       cs.steps,
		ShowPayload: cs.visible,
		Toast:       result.Toast,
	}, nil
}

// stripGreeting drops the canned greeting from an archive transcript so the
// archive holds only the wizard exchange.
func stripGreeting(messages []model.ChatMessage) []model.ChatMessage {
	archived := make([]model.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleAssistant && msg.Content == Greeting {
			continue
		}
		archived = append(archived, msg)
	}
	return archived
}

// completeFlowLocked archives the finished wizard transcript and resets the
// conversation to a clean greeting. Callers hold w.mu.
func (w *Workspace) completeFlowLocked(ctx context.Context, convID string, cs *convState, summary string) error {
	kind := cs.flow.Kind

	messages, err := w.deps.Store.Messages(w.tenantID, convID)
	if err != nil {
		return err
	}

	w.completed = append(w.completed, model.CompletedFlow{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     flow.Title(kind),
		Summary:   summary,
		Timestamp: time.Now().UTC(),
		Messages:  stripGreeting(messages),
	})
	metrics.FlowsCompletedTotal.WithLabelValues(string(kind)).Inc()

	if err := w.deps.Store.SaveMessages(w.tenantID, convID, []model.ChatMessage{w.assistantMessage(Greeting, false)}); err != nil {
		return err
	}
	cs.flow = model.IdleFlow()
	// The transcript reset invalidates the backend reply still in flight for
	// this terminal turn; the fresh transcript stays a single greeting.
	cs.epoch++

	w.publishEvent(ctx, model.WorkspaceEvent{
		ID:             uuid.NewString(),
		TenantID:       w.tenantID,
		ConversationID: convID,
		Type:           model.EventFlowCompleted,
		Reason:         summary,
		Metadata:       map[string]any{"flow": string(kind)},
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func isScripted(kind model.FlowKind) bool {
	switch kind {
	case model.FlowUpdateProduct, model.FlowExpireProduct, model.FlowViewProduct:
		return true
	}
	return false
}

func flowStep(state model.FlowState) string {
	switch state.Kind {
	case model.FlowCreateProduct:
		return string(state.CreateStep)
	case model.FlowUpdateProduct:
		return string(state.UpdateStep)
	case model.FlowExpireProduct:
		return string(state.ExpireStep)
	case model.FlowViewProduct:
		return string(state.ViewStep)
	}
	return "idle"
}
