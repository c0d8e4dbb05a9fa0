package zuora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

// ExecutorClient submits prepared catalog payloads to the execution service,
// which performs the actual Zuora REST calls.
type ExecutorClient struct {
	url    string
	client *http.Client
}

// NewExecutorClient creates an executor client for the service at url.
func NewExecutorClient(url string, timeout time.Duration) *ExecutorClient {
	return &ExecutorClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// ClassicRequest is the structured product/rate-plan/charge submission.
type ClassicRequest struct {
	ClientID     string      `json:"clientId"`
	ClientSecret string      `json:"clientSecret"`
	Body         ClassicBody `json:"body"`
	Environment  string      `json:"environment,omitempty"`
}

// ClassicBody groups the catalog fragments the executor understands.
type ClassicBody struct {
	Product        map[string]any   `json:"product,omitempty"`
	RatePlan       map[string]any   `json:"ratePlan,omitempty"`
	RatePlanCharge []map[string]any `json:"ratePlanCharge,omitempty"`
}

// DirectRequest forwards raw REST call descriptors untouched.
type DirectRequest struct {
	ClientID     string              `json:"clientId"`
	ClientSecret string              `json:"clientSecret"`
	Payloads     []model.PayloadItem `json:"zuora_api_payloads"`
	Environment  string              `json:"environment,omitempty"`
}

// ExecuteClassic submits a structured catalog creation.
func (c *ExecutorClient) ExecuteClassic(ctx context.Context, req ClassicRequest) (*model.ExecutionResult, error) {
	return c.post(ctx, req)
}

// ExecuteDirect submits a passthrough batch.
func (c *ExecutorClient) ExecuteDirect(ctx context.Context, req DirectRequest) (*model.ExecutionResult, error) {
	return c.post(ctx, req)
}

func (c *ExecutorClient) post(ctx context.Context, payload any) (*model.ExecutionResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execution service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read execution response: %w", err)
	}

	if reason, failed := executionFailure(raw, resp.StatusCode); failed {
		return nil, fmt.Errorf("%s", reason)
	}

	return decodeExecutionResult(raw), nil
}

// executionFailure applies the service's failure signals in priority order:
// an explicit error field first, then a false success flag, then the HTTP
// status. A 200 with an error body is still a failure.
func executionFailure(raw []byte, status int) (string, bool) {
	var data map[string]json.RawMessage
	decodeErr := json.Unmarshal(raw, &data)

	if decodeErr == nil {
		for _, key := range []string{"error", "Error", "Errors"} {
			rawErr, ok := data[key]
			if !ok {
				continue
			}
			if reason := errorText(rawErr); reason != "" {
				return reason, true
			}
		}
		for _, key := range []string{"success", "Success"} {
			rawOK, ok := data[key]
			if !ok {
				continue
			}
			var flag bool
			if json.Unmarshal(rawOK, &flag) == nil && !flag {
				if msg := firstString(data, "message", "reason"); msg != "" {
					return msg, true
				}
				return "execution reported failure", true
			}
		}
	}

	if status >= 400 {
		if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 300 {
			return s, true
		}
		return fmt.Sprintf("execution service returned status %d", status), true
	}
	return "", false
}

// errorText flattens an error field that may be a string, an object with a
// message, or an array of either.
func errorText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil {
		return firstString(obj, "message", "Message", "error", "code")
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return errorText(list[0])
	}
	return ""
}

// decodeExecutionResult pulls object ids out of the success body. The service
// has returned both flat and nested shapes; all known spellings are tried.
func decodeExecutionResult(raw []byte) *model.ExecutionResult {
	result := &model.ExecutionResult{}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return result
	}

	result.ProductID = firstString(data, "productId", "Id", "id")
	result.Message = firstString(data, "message", "Message")

	result.RatePlanIDs = collectIDs(data, "ratePlans", "Id", "id", "ratePlanId")
	if extra := firstString(data, "ratePlanId"); extra != "" && !contains(result.RatePlanIDs, extra) {
		result.RatePlanIDs = append(result.RatePlanIDs, extra)
	}

	result.ChargeIDs = collectIDs(data, "charges", "Id", "id", "ratePlanChargeId")
	if extra := firstString(data, "ratePlanChargeId"); extra != "" && !contains(result.ChargeIDs, extra) {
		result.ChargeIDs = append(result.ChargeIDs, extra)
	}

	return result
}

// collectIDs extracts ids from an array field of objects, trying each id key
// spelling per element.
func collectIDs(data map[string]json.RawMessage, arrayKey string, idKeys ...string) []string {
	raw, ok := data[arrayKey]
	if !ok {
		return nil
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var ids []string
	for _, item := range items {
		if id := firstString(item, idKeys...); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
