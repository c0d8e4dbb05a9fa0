package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

// RemoteResponder talks to the persona chat service over HTTP. The service's
// response schema has drifted across deployments, so decoding is deliberately
// tolerant about field names.
type RemoteResponder struct {
	url    string
	client *http.Client
}

// NewRemoteResponder creates a responder for the chat service at url.
func NewRemoteResponder(url string, timeout time.Duration) *RemoteResponder {
	return &RemoteResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend name.
func (r *RemoteResponder) Name() string {
	return "remote"
}

type remoteRequest struct {
	Persona         string              `json:"persona"`
	Message         string              `json:"message"`
	ConversationID  string              `json:"conversation_id,omitempty"`
	ZuoraAPIPayload []model.PayloadItem `json:"zuora_api_payloads,omitempty"`
}

// Respond sends the turn to the chat service and extracts the answer.
func (r *RemoteResponder) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	body, err := json.Marshal(remoteRequest{
		Persona:         turn.Persona,
		Message:         turn.Message,
		ConversationID:  turn.ConversationID,
		ZuoraAPIPayload: turn.Payloads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Global().Warn("chat service returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.String("conversation_id", turn.ConversationID),
		)
		return &Reply{
			Text:           fmt.Sprintf("Error: %d %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			ConversationID: turn.ConversationID,
		}, nil
	}

	return decodeReply(raw, turn.ConversationID), nil
}

// decodeReply extracts the assistant text, conversation id, citations, and
// staged payloads from whatever shape the service happened to return.
func decodeReply(raw []byte, fallbackConvID string) *Reply {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		// Some deployments return a bare string.
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return &Reply{Text: s, ConversationID: fallbackConvID}
		}
		return &Reply{Text: "(No reply content)", ConversationID: fallbackConvID}
	}

	text := firstString(data, "answer", "reply", "message", "assistant", "content")
	if strings.TrimSpace(text) == "" {
		text = "(No reply content)"
	}

	convID := firstString(data, "conversation_id", "conversationId", "conv_id")
	if convID == "" {
		convID = fallbackConvID
	}

	if suffix := citationSuffix(data["citations"]); suffix != "" {
		text += suffix
	}

	var payloads []model.PayloadItem
	if rawPayloads, ok := data["zuora_api_payloads"]; ok {
		if err := json.Unmarshal(rawPayloads, &payloads); err != nil {
			logger.Global().Warn("chat response carried malformed payload batch", zap.Error(err))
			payloads = nil
		}
	}

	return &Reply{Text: text, ConversationID: convID, Payloads: payloads}
}

func firstString(data map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// citationSuffix renders up to three citations as a source line. Citations
// arrive either as plain strings or as objects with title/url fields.
func citationSuffix(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return ""
	}

	var labels []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil && strings.TrimSpace(s) != "" {
			labels = append(labels, strings.TrimSpace(s))
			continue
		}
		var obj map[string]any
		if json.Unmarshal(item, &obj) == nil {
			for _, key := range []string{"title", "url", "source"} {
				if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
					labels = append(labels, strings.TrimSpace(v))
					break
				}
			}
		}
	}
	if len(labels) == 0 {
		return ""
	}

	shown := labels
	extra := 0
	if len(labels) > 3 {
		shown = labels[:3]
		extra = len(labels) - 3
	}
	line := strings.Join(shown, ", ")
	if extra > 0 {
		line += fmt.Sprintf(", +%d more", extra)
	}
	return "\n\n— sources: " + line
}
