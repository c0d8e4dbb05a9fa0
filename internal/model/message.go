package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one transcript entry. Messages are append-only within a
// conversation and never mutated after insertion except on full replacement.
// FromAPI marks assistant replies that came from the remote chat service, as
// opposed to scripted local replies; only API-sourced replies expose a copy
// affordance in clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	FromAPI   bool      `json:"from_api,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToastType styles a toast notification.
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
)

// Toast is a transient user-facing notification.
type Toast struct {
	Message string    `json:"message"`
	Type    ToastType `json:"type"`
}

// SendMessageRequest is one user turn of free text.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// TurnResponse is everything one user turn produced: the appended messages
// (scripted and remote, in insertion order), the staged steps if the remote
// service returned payload fragments, and an optional toast.
type TurnResponse struct {
	Messages    []ChatMessage `json:"messages"`
	Steps       []StagedStep  `json:"steps,omitempty"`
	ShowPayload bool          `json:"show_payload"`
	Toast       *Toast        `json:"toast,omitempty"`
}
