// Package zuora holds the outbound clients for the Zuora side of the system:
// OAuth token exchange and the payload execution service.
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

// Per-environment REST base URLs, used when the token service does not report
// one itself.
var environmentBaseURLs = map[string]string{
	model.EnvAPISandbox: "https://rest.test.zuora.com",
	model.EnvSandbox:    "https://rest.test.zuora.com",
	model.EnvProduction: "https://rest.zuora.com",
}

// Per-environment admin console hosts for post-execution deep links.
var environmentConsoleHosts = map[string]string{
	model.EnvAPISandbox: "https://apisandbox.zuora.com",
	model.EnvSandbox:    "https://sandbox.zuora.com",
	model.EnvProduction: "https://www.zuora.com",
}

// ConsoleProductURL returns the admin console deep link for a created product.
func ConsoleProductURL(environment, productID string) string {
	host, ok := environmentConsoleHosts[environment]
	if !ok {
		host = environmentConsoleHosts[model.EnvAPISandbox]
	}
	return fmt.Sprintf("%s/apps/Product.do?method=view&id=%s", host, productID)
}

// TokenClient exchanges OAuth client credentials for a bearer token via the
// token broker service.
type TokenClient struct {
	url    string
	client *http.Client
}

// NewTokenClient creates a token client for the broker at url.
func NewTokenClient(url string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type tokenRequest struct {
	Environment  string `json:"environment"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// Exchange trades credentials for a token. On a non-OK response it returns an
// error carrying the broker's failure reason.
func (c *TokenClient) Exchange(ctx context.Context, creds model.Credentials) (*model.TokenInfo, error) {
	body, err := json.Marshal(tokenRequest{
		Environment:  creds.Environment,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s", failureReason(raw, resp.StatusCode))
	}

	return decodeToken(raw, creds.Environment), nil
}

// decodeToken tolerates both camelCase and snake_case field spellings; the
// broker has shipped both.
func decodeToken(raw []byte, environment string) *model.TokenInfo {
	var data map[string]json.RawMessage
	_ = json.Unmarshal(raw, &data)

	info := &model.TokenInfo{
		AccessToken: firstString(data, "accessToken", "access_token", "token"),
		TokenType:   firstString(data, "tokenType", "token_type"),
		BaseURL:     firstString(data, "baseUrl", "base_url"),
		ExpiresIn:   firstInt(data, "expiresIn", "expires_in"),
	}
	if info.TokenType == "" {
		info.TokenType = "Bearer"
	}
	if info.BaseURL == "" {
		if base, ok := environmentBaseURLs[environment]; ok {
			info.BaseURL = base
		}
	}
	return info
}

// failureReason digs the most specific error message out of a broker failure
// body, falling back to the HTTP status.
func failureReason(raw []byte, status int) string {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err == nil {
		if reason := firstString(data, "error_description", "message", "error", "status"); reason != "" {
			return reason
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 200 {
		return s
	}
	return fmt.Sprintf("token service returned status %d", status)
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

func firstInt(data map[string]json.RawMessage, keys ...string) int {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n
		}
	}
	return 0
}
