package zuora

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuora-seed/catalog-assistant/internal/model"
)

func TestTokenExchangeCamelCase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "id-1", req["clientId"])
		assert.Equal(t, "secret-1", req["clientSecret"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accessToken":"tok-123","tokenType":"bearer","expiresIn":3600,"baseUrl":"https://rest.custom.zuora.com"}`))
	}))
	defer srv.Close()

	client := NewTokenClient(srv.URL, time.Second)
	info, err := client.Exchange(context.Background(), model.Credentials{
		Environment:  model.EnvAPISandbox,
		ClientID:     "id-1",
		ClientSecret: "secret-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", info.AccessToken)
	assert.Equal(t, "bearer", info.TokenType)
	assert.Equal(t, 3600, info.ExpiresIn)
	assert.Equal(t, "https://rest.custom.zuora.com", info.BaseURL)
}

func TestTokenExchangeSnakeCaseWithDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"abc","expires_in":1800}`))
	}))
	defer srv.Close()

	client := NewTokenClient(srv.URL, time.Second)
	info, err := client.Exchange(context.Background(), model.Credentials{
		Environment:  model.EnvProduction,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", info.AccessToken)
	assert.Equal(t, "Bearer", info.TokenType, "token type defaults to Bearer")
	assert.Equal(t, "https://rest.zuora.com", info.BaseURL, "base URL falls back to the environment table")
}

func TestTokenExchangeFailureReason(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error_description preferred", `{"error":"invalid_client","error_description":"Client credentials are invalid"}`, "Client credentials are invalid"},
		{"error field", `{"error":"invalid_client"}`, "invalid_client"},
		{"message field", `{"message":"forbidden"}`, "forbidden"},
		{"plain text body", `nope`, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewTokenClient(srv.URL, time.Second)
			_, err := client.Exchange(context.Background(), model.Credentials{
				Environment:  model.EnvSandbox,
				ClientID:     "id",
				ClientSecret: "secret",
			})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestConsoleProductURL(t *testing.T) {
	assert.Equal(t,
		"https://apisandbox.zuora.com/apps/Product.do?method=view&id=P-1",
		ConsoleProductURL(model.EnvAPISandbox, "P-1"))
	assert.Equal(t,
		"https://sandbox.zuora.com/apps/Product.do?method=view&id=P-2",
		ConsoleProductURL(model.EnvSandbox, "P-2"))
	assert.Equal(t,
		"https://www.zuora.com/apps/Product.do?method=view&id=P-3",
		ConsoleProductURL(model.EnvProduction, "P-3"))
}

func TestExecuteClassicSuccess(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"productId":"P-9","ratePlans":[{"Id":"RP-1"},{"id":"RP-2"}],"charges":[{"ratePlanChargeId":"C-1"}]}`))
	}))
	defer srv.Close()

	client := NewExecutorClient(srv.URL, time.Second)
	result, err := client.ExecuteClassic(context.Background(), ClassicRequest{
		ClientID:     "id",
		ClientSecret: "secret",
		Body: ClassicBody{
			Product:        map[string]any{"Name": "P"},
			RatePlan:       map[string]any{"Name": "RP"},
			RatePlanCharge: []map[string]any{{"Name": "C"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "P-9", result.ProductID)
	assert.Equal(t, []string{"RP-1", "RP-2"}, result.RatePlanIDs)
	assert.Equal(t, []string{"C-1"}, result.ChargeIDs)

	// The wire shape is the structured classic submission.
	assert.Contains(t, got, "clientId")
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(got["body"], &body))
	assert.Contains(t, body, "product")
	assert.Contains(t, body, "ratePlanCharge")
}

func TestExecuteFailureSignals(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"explicit error wins over 200", http.StatusOK, `{"error":"duplicate SKU"}`, "duplicate SKU"},
		{"error object message", http.StatusOK, `{"Error":{"message":"bad product"}}`, "bad product"},
		{"errors array", http.StatusOK, `{"Errors":[{"Message":"first problem"},{"Message":"second"}]}`, "first problem"},
		{"success false", http.StatusOK, `{"success":false,"message":"validation failed"}`, "validation failed"},
		{"success false without message", http.StatusOK, `{"Success":false}`, "execution reported failure"},
		{"http status fallback", http.StatusBadGateway, `upstream exploded`, "upstream exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewExecutorClient(srv.URL, time.Second)
			_, err := client.ExecuteClassic(context.Background(), ClassicRequest{})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestExecuteDirectForwardsBatch(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"message":"2 calls executed"}`))
	}))
	defer srv.Close()

	client := NewExecutorClient(srv.URL, time.Second)
	result, err := client.ExecuteDirect(context.Background(), DirectRequest{
		ClientID:     "id",
		ClientSecret: "secret",
		Payloads: []model.PayloadItem{
			{ZuoraAPIType: "", Payload: json.RawMessage(`{"method":"POST","endpoint":"/v1/x"}`)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2 calls executed", result.Message)

	var payloads []model.PayloadItem
	require.NoError(t, json.Unmarshal(got["zuora_api_payloads"], &payloads))
	require.Len(t, payloads, 1)
	assert.JSONEq(t, `{"method":"POST","endpoint":"/v1/x"}`, string(payloads[0].Payload))
}

func TestExecuteFlatIDSpellings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"Id":"P-1","ratePlanId":"RP-1","ratePlanChargeId":"C-1"}`))
	}))
	defer srv.Close()

	client := NewExecutorClient(srv.URL, time.Second)
	result, err := client.ExecuteClassic(context.Background(), ClassicRequest{})
	require.NoError(t, err)
	assert.Equal(t, "P-1", result.ProductID)
	assert.Equal(t, []string{"RP-1"}, result.RatePlanIDs)
	assert.Equal(t, []string{"C-1"}, result.ChargeIDs)
}
