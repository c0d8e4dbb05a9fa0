package staging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// Prepared is the execution-ready view of a staged batch.
type Prepared struct {
	// Direct holds the passthrough batch verbatim. When set, the classic
	// fragments below are empty.
	Direct []model.PayloadItem

	Product  map[string]any
	RatePlan map[string]any
	Charges  []map[string]any
}

// Prepare resolves the staged steps into execution-ready payloads. It fails
// fast on any unparseable or empty step buffer, with one aggregate error
// naming every bad step, before any network activity happens.
//
// In classic mode, hidden dynamic-reference fields are reinjected unless the
// user supplied a concrete value for the same key. In direct mode, untouched
// steps forward the original payload bytes verbatim.
func Prepare(steps []model.StagedStep, raw []model.PayloadItem) (*Prepared, error) {
	if len(steps) == 0 {
		return nil, errors.New("no staged payload steps to execute")
	}

	var problems []string
	parsed := make([]map[string]any, len(steps))
	for i, step := range steps {
		if strings.TrimSpace(step.JSON) == "" {
			problems = append(problems, fmt.Sprintf("%s is empty", stepLabel(step, i)))
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(step.JSON), &obj); err != nil {
			problems = append(problems, fmt.Sprintf("%s has invalid JSON: %v", stepLabel(step, i), err))
			continue
		}
		parsed[i] = obj
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("cannot execute: %s", strings.Join(problems, "; "))
	}

	if len(steps) > 0 && steps[0].Direct {
		return prepareDirect(steps, raw)
	}

	out := &Prepared{}
	for i, step := range steps {
		obj := parsed[i]
		reinjectHidden(obj, step.HiddenFields)

		switch step.Type {
		case TypeProduct:
			if out.Product == nil {
				out.Product = obj
			}
		case TypeRatePlan:
			if out.RatePlan == nil {
				out.RatePlan = obj
			}
		case TypeRatePlanCharge:
			out.Charges = append(out.Charges, obj)
		}
	}
	return out, nil
}

func prepareDirect(steps []model.StagedStep, raw []model.PayloadItem) (*Prepared, error) {
	items := make([]model.PayloadItem, len(steps))
	for i, step := range steps {
		item := model.PayloadItem{ZuoraAPIType: step.RawType}
		if i < len(raw) {
			item = raw[i]
		}
		if i < len(raw) && jsonEquivalent([]byte(step.JSON), raw[i].Payload) {
			// Untouched step: the original bytes go out unchanged.
			items[i] = item
			continue
		}
		compact, err := compactJSON([]byte(step.JSON))
		if err != nil {
			return nil, fmt.Errorf("cannot execute: %s has invalid JSON: %w", stepLabel(step, i), err)
		}
		item.Payload = compact
		items[i] = item
	}
	return &Prepared{Direct: items}, nil
}

// reinjectHidden restores stripped dynamic references. An explicit user value
// wins: reinjection happens only when the key is absent, null, empty, or
// still a placeholder.
func reinjectHidden(obj map[string]any, hidden map[string]model.DeferredRef) {
	for key, ref := range hidden {
		current, present := obj[key]
		if !present || current == nil {
			obj[key] = ref.Raw()
			continue
		}
		if s, ok := current.(string); ok {
			if strings.TrimSpace(s) == "" || model.IsPlaceholder(s) {
				obj[key] = ref.Raw()
			}
		}
	}
}

func stepLabel(step model.StagedStep, index int) string {
	if step.Title != "" {
		return step.Title
	}
	return fmt.Sprintf("Step %d", index+1)
}

func jsonEquivalent(a, b []byte) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

func compactJSON(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
