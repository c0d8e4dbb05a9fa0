package chat

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

func respondWith(t *testing.T, body string) (*RemoteResponder, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	return NewRemoteResponder(srv.URL, time.Second), srv.Close
}

func TestRespondAnswerFieldVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"answer", `{"answer":"from answer"}`, "from answer"},
		{"reply", `{"reply":"from reply"}`, "from reply"},
		{"message", `{"message":"from message"}`, "from message"},
		{"assistant", `{"assistant":"from assistant"}`, "from assistant"},
		{"content", `{"content":"from content"}`, "from content"},
		{"answer wins over content", `{"answer":"a","content":"c"}`, "a"},
		{"no text at all", `{"foo":"bar"}`, "(No reply content)"},
		{"bare string body", `"just text"`, "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder, closeFn := respondWith(t, tt.body)
			defer closeFn()

			reply, err := responder.Respond(context.Background(), Turn{Persona: "ProductManager", Message: "hi"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Text)
		})
	}
}

func TestRespondConversationIDVariants(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"answer":"x","conversation_id":"remote-1"}`, "remote-1"},
		{`{"answer":"x","conversationId":"remote-2"}`, "remote-2"},
		{`{"answer":"x","conv_id":"remote-3"}`, "remote-3"},
		{`{"answer":"x"}`, "local-1"},
	}

	for _, tt := range tests {
		responder, closeFn := respondWith(t, tt.body)
		reply, err := responder.Respond(context.Background(), Turn{ConversationID: "local-1", Message: "hi"})
		closeFn()
		require.NoError(t, err)
		assert.Equal(t, tt.want, reply.ConversationID)
	}
}

func TestRespondCitations(t *testing.T) {
	responder, closeFn := respondWith(t,
		`{"answer":"see docs","citations":["a","b","c","d","e"]}`)
	defer closeFn()

	reply, err := responder.Respond(context.Background(), Turn{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "see docs\n\n— sources: a, b, c, +2 more", reply.Text)
}

func TestRespondCitationObjects(t *testing.T) {
	responder, closeFn := respondWith(t,
		`{"answer":"ok","citations":[{"title":"Billing Guide","url":"https://x"},{"url":"https://y"}]}`)
	defer closeFn()

	reply, err := responder.Respond(context.Background(), Turn{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok\n\n— sources: Billing Guide, https://y", reply.Text)
}

func TestRespondPayloadExtraction(t *testing.T) {
	responder, closeFn := respondWith(t,
		`{"answer":"staged","zuora_api_payloads":[{"zuora_api_type":"product_create","payload":{"Name":"P"}}]}`)
	defer closeFn()

	reply, err := responder.Respond(context.Background(), Turn{Message: "create it"})
	require.NoError(t, err)
	require.Len(t, reply.Payloads, 1)
	assert.Equal(t, "product_create", reply.Payloads[0].ZuoraAPIType)
	assert.JSONEq(t, `{"Name":"P"}`, string(reply.Payloads[0].Payload))
}

func TestRespondNonOKBecomesErrorText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream timeout"))
	}))
	defer srv.Close()

	responder := NewRemoteResponder(srv.URL, time.Second)
	reply, err := responder.Respond(context.Background(), Turn{ConversationID: "local-1", Message: "hi"})
	require.NoError(t, err, "a non-OK status is a degraded reply, not a transport error")
	assert.Equal(t, "Error: 502 upstream timeout", reply.Text)
	assert.Equal(t, "local-1", reply.ConversationID)
}

func TestRespondSendsRoundTripBatch(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"answer":"ok"}`))
	}))
	defer srv.Close()

	responder := NewRemoteResponder(srv.URL, time.Second)
	_, err := responder.Respond(context.Background(), Turn{
		Persona:        "ProductManager",
		Message:        "add another rate plan",
		ConversationID: "remote-1",
		Payloads: []model.PayloadItem{
			{ZuoraAPIType: "product_create", Payload: json.RawMessage(`{"Name":"P"}`)},
		},
	})
	require.NoError(t, err)

	var persona string
	require.NoError(t, json.Unmarshal(got["persona"], &persona))
	assert.Equal(t, "ProductManager", persona)
	assert.Contains(t, got, "zuora_api_payloads")
	var convID string
	require.NoError(t, json.Unmarshal(got["conversation_id"], &convID))
	assert.Equal(t, "remote-1", convID)
}
