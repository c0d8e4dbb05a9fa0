package model

import (
	"time"
)

// EventType represents the type of workspace event.
type EventType string

const (
	EventFlowCompleted    EventType = "flow_completed"
	EventExecutionSuccess EventType = "execution_succeeded"
	EventExecutionFailure EventType = "execution_failed"
	EventConnected        EventType = "connection_established"
	EventDisconnected     EventType = "connection_closed"
)

// WorkspaceEvent is published to the event feed when something durable happens
// in a workspace: a wizard completes, an execution finishes, a connection
// opens or closes.
type WorkspaceEvent struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
