package model

// Environment keys for the billing platform.
const (
	EnvAPISandbox = "api-sandbox"
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Credentials are the connect-form inputs for the token exchange.
type Credentials struct {
	Environment  string `json:"environment"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// TokenInfo is the decoded token exchange response.
type TokenInfo struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	BaseURL     string `json:"base_url"`
	Scope       string `json:"scope,omitempty"`
}

// ConnectionState is the user-visible connection status.
type ConnectionState struct {
	Connected   bool   `json:"connected"`
	Environment string `json:"environment,omitempty"`
	BaseURL     string `json:"base_url,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// ConnectResponse carries the outcome of a connect attempt. FieldErrors are
// inline validation failures keyed by form field; they block the exchange.
type ConnectResponse struct {
	Connection  ConnectionState   `json:"connection"`
	Toast       *Toast            `json:"toast,omitempty"`
	Message     *ChatMessage      `json:"message,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}
