// Package model defines data structures for the catalog workspace.
package model

import (
	"time"
)

// ConversationSummary is the durable per-conversation record. The title is
// derived from the first user message and re-derived whenever messages change.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationView is a conversation with its full transcript and staged steps.
type ConversationView struct {
	Conversation ConversationSummary `json:"conversation"`
	Messages     []ChatMessage       `json:"messages"`
	Steps        []StagedStep        `json:"steps,omitempty"`
	ShowPayload  bool                `json:"show_payload"`
}

// ListConversationsResponse is the response for listing conversations, most
// recently updated first.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	ActiveID      string                `json:"active_id,omitempty"`
}
