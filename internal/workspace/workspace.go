// Package workspace owns per-tenant assistant state: the connection to the
// billing platform, the conversation transcripts, the scripted wizard state,
// and the staged payload batch. It coordinates the store, the chat backend,
// and the execution clients behind one mutex per tenant.
package workspace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/internal/chat"
	"github.com/zuora-seed/catalog-assistant/internal/flow"
	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/nats"
	"github.com/zuora-seed/catalog-assistant/internal/staging"
	"github.com/zuora-seed/catalog-assistant/internal/store"
	"github.com/zuora-seed/catalog-assistant/internal/zuora"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
	"github.com/zuora-seed/catalog-assistant/pkg/metrics"
)

// Greeting opens every fresh conversation.
const Greeting = "Hi, I'm Zia — your AI configuration assistant. Let's connect to Zuora and manage your Product Catalog."

// NotConnectedReply is the guard message for catalog actions attempted before
// a connection exists. It is sent exactly once per guarded turn.
const NotConnectedReply = "You're not connected yet. Please connect to Zuora first to continue."

// Deps are the collaborators a workspace needs. Events may be nil; event
// publishing is then a no-op.
type Deps struct {
	Store     *store.Store
	Responder chat.Responder
	Tokens    *zuora.TokenClient
	Executor  *zuora.ExecutorClient
	Events    *nats.EventPublisher
	Logger    *logger.Logger
	Persona   string
}

// Manager hands out one workspace per tenant.
type Manager struct {
	mu         sync.Mutex
	deps       Deps
	workspaces map[string]*Workspace
}

// NewManager creates a workspace manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:       deps,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the tenant's workspace, creating it on first use.
func (m *Manager) Get(tenantID string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws, ok := m.workspaces[tenantID]
	if !ok {
		ws = &Workspace{
			tenantID:      tenantID,
			deps:          m.deps,
			conversations: make(map[string]*convState),
		}
		m.workspaces[tenantID] = ws
	}
	return ws
}

// convState is the volatile per-conversation state. Transcripts and payload
// batches are durable in the store; flow state and the staged step buffers
// live here and reset when the process restarts or the conversation is
// switched away from.
type convState struct {
	flow    model.FlowState
	steps   []model.StagedStep
	raw     []model.PayloadItem
	result  *model.ExecutionResult
	remote  string // conversation id assigned by the chat service
	visible bool   // payload panel visibility
	// epoch invalidates in-flight remote replies. Any switch, reset, or
	// delete bumps it; a reply that arrives carrying an older epoch is
	// discarded.
	epoch uint64
}

// Workspace is one tenant's assistant session.
type Workspace struct {
	mu       sync.Mutex
	tenantID string
	deps     Deps

	connected bool
	creds     model.Credentials
	token     *model.TokenInfo

	activeID      string
	activeLoaded  bool
	conversations map[string]*convState

	completed []model.CompletedFlow
}

func (w *Workspace) log() *logger.Logger {
	if w.deps.Logger != nil {
		return w.deps.Logger
	}
	return logger.Global()
}

// conv returns the in-memory state for a conversation, rebuilding the staged
// steps from the persisted payload batch on first access.
func (w *Workspace) conv(conversationID string) *convState {
	cs, ok := w.conversations[conversationID]
	if ok {
		return cs
	}

	cs = &convState{flow: model.IdleFlow()}
	if items, err := w.deps.Store.Payloads(w.tenantID, conversationID); err == nil && len(items) > 0 {
		cs.steps, cs.raw = staging.Ingest(items)
		cs.visible = true
	}
	w.conversations[conversationID] = cs
	return cs
}

// ensureActive resolves the active conversation, restoring the persisted
// selection or creating a fresh conversation seeded with the greeting.
func (w *Workspace) ensureActive() (string, error) {
	if w.activeLoaded && w.activeID != "" {
		return w.activeID, nil
	}

	id, err := w.deps.Store.ActiveConversation(w.tenantID, w.deps.Persona)
	if err != nil {
		return "", fmt.Errorf("failed to resolve active conversation: %w", err)
	}
	if id == "" {
		id, err = w.createConversationLocked()
		if err != nil {
			return "", err
		}
	} else if _, err := w.deps.Store.Ensure(w.tenantID, id); err != nil {
		return "", fmt.Errorf("failed to load active conversation: %w", err)
	}

	w.activeID = id
	w.activeLoaded = true
	return id, nil
}

// createConversationLocked creates and activates a fresh conversation with
// the greeting as its only message. Callers hold w.mu.
func (w *Workspace) createConversationLocked() (string, error) {
	id := store.NewConversationID()
	if _, err := w.deps.Store.Ensure(w.tenantID, id); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	if _, err := w.deps.Store.AppendMessages(w.tenantID, id, w.assistantMessage(Greeting, false)); err != nil {
		return "", fmt.Errorf("failed to seed conversation: %w", err)
	}
	if err := w.deps.Store.SetActiveConversation(w.tenantID, w.deps.Persona, id); err != nil {
		return "", fmt.Errorf("failed to activate conversation: %w", err)
	}

	w.conversations[id] = &convState{flow: model.IdleFlow()}
	w.activeID = id
	w.activeLoaded = true
	metrics.ConversationsTotal.WithLabelValues(w.tenantID).Inc()
	return id, nil
}

// ListConversations returns the tenant's conversations, most recent first,
// plus the active selection.
func (w *Workspace) ListConversations() (*model.ListConversationsResponse, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	activeID, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	summaries, err := w.deps.Store.List(w.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return &model.ListConversationsResponse{Conversations: summaries, ActiveID: activeID}, nil
}

// CreateConversation starts a fresh conversation and makes it active. The
// previous conversation's in-flight replies are invalidated.
func (w *Workspace) CreateConversation() (*model.ConversationView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeID != "" {
		prev := w.conv(w.activeID)
		prev.epoch++
		w.abandonFlowLocked(w.activeID, prev)
	}
	id, err := w.createConversationLocked()
	if err != nil {
		return nil, err
	}
	return w.viewLocked(id)
}

// SelectConversation switches the active conversation. Scripted flow state
// does not survive the switch; staged steps are rebuilt from the persisted
// payload batch.
func (w *Workspace) SelectConversation(conversationID string) (*model.ConversationView, error) {
	id := store.SanitizeConversationID(conversationID)
	if id == "" {
		return nil, fmt.Errorf("invalid conversation id %q", conversationID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.deps.Store.Get(w.tenantID, id); err != nil {
		return nil, err
	}

	if w.activeID != "" && w.activeID != id {
		prev := w.conv(w.activeID)
		prev.epoch++
		w.abandonFlowLocked(w.activeID, prev)
	}
	// Force a rebuild from the durable batch.
	delete(w.conversations, id)

	if err := w.deps.Store.SetActiveConversation(w.tenantID, w.deps.Persona, id); err != nil {
		return nil, fmt.Errorf("failed to activate conversation: %w", err)
	}
	w.activeID = id
	w.activeLoaded = true

	return w.viewLocked(id)
}

// abandonFlowLocked archives a wizard left mid-flow when the user switches
// away. The conversation transcript is left intact; only the flow ends.
// Callers hold w.mu.
func (w *Workspace) abandonFlowLocked(convID string, cs *convState) {
	kind := cs.flow.Kind
	if kind == model.FlowIdle {
		return
	}
	summary := flow.Summary(cs.flow)
	cs.flow = model.IdleFlow()

	messages, err := w.deps.Store.Messages(w.tenantID, convID)
	if err != nil {
		w.log().Warn("failed to load transcript for abandoned flow",
			zap.String("tenant_id", w.tenantID),
			zap.String("conversation_id", convID),
			zap.Error(err))
		messages = nil
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
}

// DeleteConversation removes a conversation and all its data. Deleting the
// active conversation activates a fresh one.
func (w *Workspace) DeleteConversation(conversationID string) (*model.ConversationView, error) {
	id := store.SanitizeConversationID(conversationID)
	if id == "" {
		return nil, fmt.Errorf("invalid conversation id %q", conversationID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if cs, ok := w.conversations[id]; ok {
		cs.epoch++
	}
	delete(w.conversations, id)
	if err := w.deps.Store.Delete(w.tenantID, id); err != nil {
		return nil, err
	}

	if w.activeID == id || w.activeID == "" {
		// Clear the persisted pointer so ensureActive does not resurrect the
		// deleted conversation.
		if err := w.deps.Store.SetActiveConversation(w.tenantID, w.deps.Persona, ""); err != nil {
			return nil, fmt.Errorf("failed to clear active conversation: %w", err)
		}
		w.activeID = ""
		w.activeLoaded = false
		if _, err := w.ensureActive(); err != nil {
			return nil, err
		}
	}
	return w.viewLocked(w.activeID)
}

// ActiveView returns the active conversation with its transcript and staged
// steps.
func (w *Workspace) ActiveView() (*model.ConversationView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := w.ensureActive()
	if err != nil {
		return nil, err
	}
	return w.viewLocked(id)
}

func (w *Workspace) viewLocked(conversationID string) (*model.ConversationView, error) {
	summary, err := w.deps.Store.Get(w.tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := w.deps.Store.Messages(w.tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	cs := w.conv(conversationID)
	return &model.ConversationView{
		Conversation: summary,
		Messages:     messages,
		Steps:        cs.steps,
		ShowPayload:  cs.visible,
	}, nil
}

// CompletedFlows returns the archived wizard transcripts, newest last.
func (w *Workspace) CompletedFlows() []model.CompletedFlow {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]model.CompletedFlow, len(w.completed))
	copy(out, w.completed)
	return out
}

func (w *Workspace) assistantMessage(content string, fromAPI bool) model.ChatMessage {
	metrics.MessagesTotal.WithLabelValues(w.tenantID, string(model.RoleAssistant)).Inc()
	return model.ChatMessage{
		ID:        "msg-" + uuid.NewString(),
		Role:      model.RoleAssistant,
		Content:   content,
		FromAPI:   fromAPI,
		Timestamp: time.Now().UTC(),
	}
}

func (w *Workspace) userMessage(content string) model.ChatMessage {
	metrics.MessagesTotal.WithLabelValues(w.tenantID, string(model.RoleUser)).Inc()
	return model.ChatMessage{
		ID:        "msg-" + uuid.NewString(),
		Role:      model.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func (w *Workspace) logDiscard(conversationID string, epoch uint64) {
	w.log().Info("discarding stale chat reply",
		zap.String("tenant_id", w.tenantID),
		zap.String("conversation_id", conversationID),
		zap.Uint64("epoch", epoch),
	)
}
