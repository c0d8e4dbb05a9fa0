// Package chat produces assistant replies for a conversation turn, either by
// calling a remote persona chat service or by falling back to an LLM provider.
package chat

import (
	"context"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// Turn is one user utterance plus the context the backend needs to answer it.
type Turn struct {
	Persona        string
	Message        string
	ConversationID string
	// Payloads carries the previously staged batch back to the service so it
	// can revise or extend it.
	Payloads []model.PayloadItem
}

// Reply is the backend's answer to a turn.
type Reply struct {
	Text           string
	ConversationID string
	Payloads       []model.PayloadItem
}

// Responder answers conversation turns.
type Responder interface {
	Respond(ctx context.Context, turn Turn) (*Reply, error)
	Name() string
}
