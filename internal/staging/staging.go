// Package staging converts remote-supplied API payload fragments into
// reviewable, editable, safely resubmittable steps.
package staging

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// Canonical payload types.
const (
	TypeProduct        = "product"
	TypeRatePlan       = "rateplan"
	TypeRatePlanCharge = "rateplancharge"
)

// normalizeTable maps the chat service's type vocabulary onto the canonical
// set. Unknown tags pass through unchanged.
var normalizeTable = map[string]string{
	"product_create":   TypeProduct,
	"product":          TypeProduct,
	"rate_plan_create": TypeRatePlan,
	"rateplan":         TypeRatePlan,
	"charge_create":    TypeRatePlanCharge,
	"rate_plan_charge": TypeRatePlanCharge,
	"rateplancharge":   TypeRatePlanCharge,
}

// denormalizeTable maps canonical types back to the wire vocabulary the chat
// service expects on the next turn.
var denormalizeTable = map[string]string{
	TypeProduct:        "product_create",
	TypeRatePlan:       "rate_plan_create",
	TypeRatePlanCharge: "charge_create",
}

// Normalize maps a wire type tag to its canonical spelling.
func Normalize(t string) string {
	if canonical, ok := normalizeTable[strings.ToLower(strings.TrimSpace(t))]; ok {
		return canonical
	}
	return t
}

// Denormalize maps a canonical type back to the chat service's vocabulary.
func Denormalize(t string) string {
	if wire, ok := denormalizeTable[t]; ok {
		return wire
	}
	return t
}

// hiddenFieldKeys is the known dynamic-reference set: top-level fields under
// these keys whose value is a "@{...}" placeholder are stripped from the
// visible JSON and retained for reinjection at execution time.
var hiddenFieldKeys = map[string]bool{
	"ProductId":         true,
	"ProductRatePlanId": true,
	"RatePlanId":        true,
}

// IsDirectBatch reports whether any item signals direct-REST passthrough: a
// payload object carrying both a "method" and an "endpoint" key. A single
// such item makes the whole batch direct.
func IsDirectBatch(items []model.PayloadItem) bool {
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item.Payload, &obj); err != nil {
			continue
		}
		if _, hasMethod := obj["method"]; hasMethod {
			if _, hasEndpoint := obj["endpoint"]; hasEndpoint {
				return true
			}
		}
	}
	return false
}

// Ingest stages a batch of payload fragments. It returns the staged steps and
// the batch to persist for round-tripping to the chat service: original items
// untouched in direct mode, normalized items otherwise.
func Ingest(items []model.PayloadItem) ([]model.StagedStep, []model.PayloadItem) {
	if len(items) == 0 {
		return nil, nil
	}

	if IsDirectBatch(items) {
		steps := make([]model.StagedStep, len(items))
		for i, item := range items {
			steps[i] = model.StagedStep{
				ID:       fmt.Sprintf("step-%d", i+1),
				Type:     item.ZuoraAPIType,
				RawType:  item.ZuoraAPIType,
				Title:    fmt.Sprintf("Step %d — Zuora Call", i+1),
				JSON:     prettyJSON(item.Payload),
				Expanded: true,
				Direct:   true,
			}
		}
		return steps, items
	}

	steps := make([]model.StagedStep, len(items))
	normalized := make([]model.PayloadItem, len(items))
	for i, item := range items {
		canonical := Normalize(item.ZuoraAPIType)
		visible, hidden := sanitize(item.Payload)

		steps[i] = model.StagedStep{
			ID:           fmt.Sprintf("step-%d", i+1),
			Type:         canonical,
			RawType:      item.ZuoraAPIType,
			Title:        titleFor(canonical, item.Payload, i+1),
			Description:  descriptionFor(canonical),
			JSON:         prettyJSON(visible),
			Expanded:     true,
			HiddenFields: hidden,
		}
		normalized[i] = model.PayloadItem{
			ZuoraAPIType: canonical,
			Payload:      item.Payload,
			PayloadID:    item.PayloadID,
		}
	}
	return steps, normalized
}

// sanitize strips known dynamic-reference placeholders from the payload's
// top level so the user reviews a self-contained object. The stripped
// references are returned parsed and keyed by field name for reinjection
// later; malformed placeholders stay in the visible JSON.
func sanitize(payload json.RawMessage) (json.RawMessage, map[string]model.DeferredRef) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload, nil
	}

	var hidden map[string]model.DeferredRef
	for key, value := range obj {
		if !hiddenFieldKeys[key] {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		ref, ok := model.ParseDeferredRef(s)
		if !ok {
			continue
		}
		if hidden == nil {
			hidden = make(map[string]model.DeferredRef)
		}
		hidden[key] = ref
		delete(obj, key)
	}
	if hidden == nil {
		return payload, nil
	}

	cleaned, err := json.Marshal(obj)
	if err != nil {
		return payload, hidden
	}
	return cleaned, hidden
}

func titleFor(canonical string, payload json.RawMessage, position int) string {
	label := ""
	switch canonical {
	case TypeProduct:
		label = "Create Product"
	case TypeRatePlan:
		label = "Create Rate Plan"
	case TypeRatePlanCharge:
		label = "Create Rate Plan Charge"
	default:
		if canonical == "" {
			canonical = "Zuora Call"
		}
		return fmt.Sprintf("Step %d — %s", position, canonical)
	}

	if name := payloadName(payload); name != "" {
		return fmt.Sprintf("Step %d — %s — %s", position, label, name)
	}
	return fmt.Sprintf("Step %d — %s", position, label)
}

func payloadName(payload json.RawMessage) string {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"name", "Name"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func descriptionFor(canonical string) string {
	switch canonical {
	case TypeProduct:
		return "Zuora call to create the Product object."
	case TypeRatePlan:
		return "Zuora call to create a Product Rate Plan for the product."
	case TypeRatePlanCharge:
		return "Zuora call to create a Rate Plan Charge under the rate plan."
	}
	return ""
}

// Edit replaces a step's editable buffer and recomputes its local parse
// state. Invalid JSON is a recoverable per-step state, never an error return.
func Edit(step model.StagedStep, jsonText string) model.StagedStep {
	step.JSON = jsonText
	step.JSONError = ValidateJSON(jsonText)
	return step
}

// ValidateJSON returns the parse failure message for a buffer, or "" when the
// buffer is valid. An empty buffer is reported as empty, not invalid.
func ValidateJSON(jsonText string) string {
	if strings.TrimSpace(jsonText) == "" {
		return "Payload is empty. Please provide valid JSON."
	}
	var v any
	if err := json.Unmarshal([]byte(jsonText), &v); err != nil {
		return err.Error()
	}
	return ""
}

// DenormalizeItems maps a persisted batch back to the chat service's type
// vocabulary for the next turn's request.
func DenormalizeItems(items []model.PayloadItem) []model.PayloadItem {
	if len(items) == 0 {
		return nil
	}
	if IsDirectBatch(items) {
		return items
	}
	out := make([]model.PayloadItem, len(items))
	for i, item := range items {
		out[i] = model.PayloadItem{
			ZuoraAPIType: Denormalize(item.ZuoraAPIType),
			Payload:      item.Payload,
			PayloadID:    item.PayloadID,
		}
	}
	return out
}

func prettyJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(pretty)
}
