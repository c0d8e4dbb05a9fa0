package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PayloadItem is one API payload fragment as the chat service sends it. The
// raw payload bytes are retained untouched so direct-REST items survive a full
// ingest/execute round trip byte for byte.
type PayloadItem struct {
	ZuoraAPIType string          `json:"zuora_api_type"`
	Payload      json.RawMessage `json:"payload"`
	PayloadID    string          `json:"payload_id,omitempty"`
}

// StagedStep is one reviewable, editable payload step. JSON is the sanitized
// pretty-printed view the user edits; JSONError is the local parse state
// recomputed on every edit, Error is reserved for backend-reported faults.
type StagedStep struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	RawType      string                 `json:"raw_type,omitempty"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	JSON         string                 `json:"json"`
	Error        string                 `json:"error,omitempty"`
	JSONError    string                 `json:"json_error,omitempty"`
	Expanded     bool                   `json:"expanded"`
	Direct       bool                   `json:"direct,omitempty"`
	HiddenFields map[string]DeferredRef `json:"hidden_fields,omitempty"`
}

// EditStepRequest replaces a staged step's editable JSON buffer.
type EditStepRequest struct {
	JSON string `json:"json"`
}

// DraftRequest is the legacy generate-from-form path: basic product fields
// drafted into the three classic payload buffers.
type DraftRequest struct {
	Name            string `json:"name"`
	SKU             string `json:"sku"`
	Description     string `json:"description"`
	StartDate       string `json:"start_date"`
	RatePlanName    string `json:"rate_plan_name"`
	RatePlanComment string `json:"rate_plan_description"`
	ChargeName      string `json:"charge_name"`
}

// ExecutionResult is the terminal artifact of a successful submission.
type ExecutionResult struct {
	ProductID   string   `json:"product_id"`
	RatePlanIDs []string `json:"rate_plan_ids"`
	ChargeIDs   []string `json:"charge_ids"`
	ConsoleURL  string   `json:"console_url,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// ExecuteResponse is what an execution attempt returns to the client.
type ExecuteResponse struct {
	Result  *ExecutionResult `json:"result,omitempty"`
	Message ChatMessage      `json:"message"`
	Toast   Toast            `json:"toast"`
	Steps   []StagedStep     `json:"steps,omitempty"`
}

// DeferredRef is a typed cross-step forward reference, parsed from the wire
// convention "@{Source.Field}" (e.g. "@{Product.Id}").
type DeferredRef struct {
	Source string
	Field  string
}

var deferredRefPattern = regexp.MustCompile(`^@\{([^.{}]+)\.([^.{}]+)\}$`)

// ParseDeferredRef parses a placeholder string into a DeferredRef. The second
// return is false when the string is not a placeholder.
func ParseDeferredRef(s string) (DeferredRef, bool) {
	m := deferredRefPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return DeferredRef{}, false
	}
	return DeferredRef{Source: m[1], Field: m[2]}, true
}

// IsPlaceholder reports whether s uses the deferred-reference convention,
// including malformed variants that still carry the "@{" prefix.
func IsPlaceholder(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "@{")
}

// Raw renders the reference back to its wire form.
func (r DeferredRef) Raw() string {
	return "@{" + r.Source + "." + r.Field + "}"
}

// MarshalJSON keeps the wire form a plain placeholder string.
func (r DeferredRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Raw())
}

func (r *DeferredRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ref, ok := ParseDeferredRef(s)
	if !ok {
		return fmt.Errorf("malformed deferred reference %q", s)
	}
	*r = ref
	return nil
}
