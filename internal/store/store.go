// Package store persists workspace conversation state in a single bbolt file.
// Logical datasets are kept in separate buckets: conversation summaries, one
// message-array blob per conversation, one payload-array blob per
// conversation, and the active-conversation pointers.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

const (
	bucketConversations = "conversations"
	bucketMessages      = "messages"
	bucketPayloads      = "payloads"
	bucketMeta          = "meta"

	// legacyActiveKey is the old single-conversation pointer, migrated into
	// the per-tenant, per-persona key scheme on first read.
	legacyActiveKey = "pm_conversation_id"

	// DefaultTitle is the title of a conversation with no user messages yet.
	DefaultTitle = "New chat"

	titleMaxRunes = 40
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the bbolt-backed conversation store.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketConversations, bucketMessages, bucketPayloads, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewConversationID generates an opaque conversation id.
func NewConversationID() string {
	return "conv-" + uuid.New().String()
}

// SanitizeConversationID normalizes a conversation id read from clients or
// old storage; returns "" for values that are not usable ids.
func SanitizeConversationID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" || trimmed == "null" || trimmed == "undefined" {
		return ""
	}
	return trimmed
}

// DeriveTitle derives a conversation title from its transcript: first line of
// the first user message, truncated to 40 runes with an ellipsis. A
// conversation with no user messages is titled "New chat".
func DeriveTitle(messages []model.ChatMessage) string {
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		base := strings.TrimSpace(strings.SplitN(m.Content, "\n", 2)[0])
		if base == "" {
			return DefaultTitle
		}
		runes := []rune(base)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "…"
		}
		return base
	}
	return DefaultTitle
}

func convKey(tenantID, conversationID string) []byte {
	return []byte(tenantID + "/" + conversationID)
}

// Ensure creates the conversation record if it does not exist and returns it.
func (s *Store) Ensure(tenantID, conversationID string) (model.ConversationSummary, error) {
	var summary model.ConversationSummary
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketConversations))
		key := convKey(tenantID, conversationID)
		if raw := b.Get(key); raw != nil {
			if err := json.Unmarshal(raw, &summary); err == nil {
				return nil
			}
			// Malformed entry: fall through and rewrite it.
		}
		now := time.Now().UTC()
		summary = model.ConversationSummary{
			ID:        conversationID,
			Title:     DefaultTitle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		raw, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	})
	if err != nil {
		return model.ConversationSummary{}, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return summary, nil
}

// Get returns one conversation summary.
func (s *Store) Get(tenantID, conversationID string) (model.ConversationSummary, error) {
	var summary model.ConversationSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketConversations)).Get(convKey(tenantID, conversationID))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &summary)
	})
	if err != nil {
		return model.ConversationSummary{}, err
	}
	return summary, nil
}

// List returns a tenant's conversations, most recently updated first.
// Malformed entries are skipped instead of failing the whole load.
func (s *Store) List(tenantID string) ([]model.ConversationSummary, error) {
	prefix := []byte(tenantID + "/")
	var out []model.ConversationSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketConversations)).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var summary model.ConversationSummary
			if err := json.Unmarshal(v, &summary); err != nil {
				continue
			}
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Messages returns the transcript for one conversation. A missing or
// malformed blob reads as an empty transcript.
func (s *Store) Messages(tenantID, conversationID string) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketMessages)).Get(convKey(tenantID, conversationID))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			out = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveMessages replaces the transcript blob and re-derives the conversation
// title and updated-at stamp.
func (s *Store) SaveMessages(tenantID, conversationID string, messages []model.ChatMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		key := convKey(tenantID, conversationID)
		if err := tx.Bucket([]byte(bucketMessages)).Put(key, raw); err != nil {
			return err
		}

		b := tx.Bucket([]byte(bucketConversations))
		var summary model.ConversationSummary
		now := time.Now().UTC()
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &summary); err != nil {
				summary = model.ConversationSummary{ID: conversationID, CreatedAt: now}
			}
		} else {
			summary = model.ConversationSummary{ID: conversationID, CreatedAt: now}
		}
		summary.Title = DeriveTitle(messages)
		summary.UpdatedAt = now

		encoded, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return b.Put(key, encoded)
	})
}

// AppendMessages appends to the transcript and persists it.
func (s *Store) AppendMessages(tenantID, conversationID string, messages ...model.ChatMessage) ([]model.ChatMessage, error) {
	existing, err := s.Messages(tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	combined := append(existing, messages...)
	if err := s.SaveMessages(tenantID, conversationID, combined); err != nil {
		return nil, err
	}
	return combined, nil
}

// Payloads returns the most recent payload batch for a conversation.
func (s *Store) Payloads(tenantID, conversationID string) ([]model.PayloadItem, error) {
	var out []model.PayloadItem
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketPayloads)).Get(convKey(tenantID, conversationID))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			out = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SavePayloads replaces the payload batch for a conversation.
func (s *Store) SavePayloads(tenantID, conversationID string, items []model.PayloadItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal payloads: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPayloads)).Put(convKey(tenantID, conversationID), raw)
	})
}

// Delete removes a conversation, its transcript, and its payload batch.
func (s *Store) Delete(tenantID, conversationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := convKey(tenantID, conversationID)
		if err := tx.Bucket([]byte(bucketConversations)).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketMessages)).Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketPayloads)).Delete(key)
	})
}

func activeKey(tenantID, persona string) []byte {
	return []byte("active:" + tenantID + ":" + persona)
}

// ActiveConversation returns the active conversation pointer for a tenant and
// persona. A value stored under the legacy single-conversation key is
// migrated into the new key scheme on first read.
func (s *Store) ActiveConversation(tenantID, persona string) (string, error) {
	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMeta))
		key := activeKey(tenantID, persona)

		if legacy := b.Get([]byte(legacyActiveKey)); legacy != nil {
			if migrated := SanitizeConversationID(string(legacy)); migrated != "" {
				if err := b.Put(key, []byte(migrated)); err != nil {
					return err
				}
			}
			if err := b.Delete([]byte(legacyActiveKey)); err != nil {
				return err
			}
		}

		id = SanitizeConversationID(string(b.Get(key)))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read active conversation: %w", err)
	}
	return id, nil
}

// SetActiveConversation stores the active conversation pointer.
func (s *Store) SetActiveConversation(tenantID, persona, conversationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).Put(activeKey(tenantID, persona), []byte(conversationID))
	})
}
