package workspace_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuora-seed/catalog-assistant/internal/chat"
	"github.com/zuora-seed/catalog-assistant/internal/model"
	"github.com/zuora-seed/catalog-assistant/internal/store"
	"github.com/zuora-seed/catalog-assistant/internal/workspace"
	"github.com/zuora-seed/catalog-assistant/internal/zuora"
	"github.com/zuora-seed/catalog-assistant/pkg/logger"
)

type stubResponder struct {
	reply    *chat.Reply
	err      error
	calls    int32
	lastTurn chat.Turn
	onCall   func()
}

func (s *stubResponder) Respond(ctx context.Context, turn chat.Turn) (*chat.Reply, error) {
	atomic.AddInt32(&s.calls, 1)
	s.lastTurn = turn
	if s.onCall != nil {
		s.onCall()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.reply != nil {
		return s.reply, nil
	}
	return &chat.Reply{Text: "stub reply", ConversationID: turn.ConversationID}, nil
}

func (s *stubResponder) Name() string { return "stub" }

type testEnv struct {
	ws        *workspace.Workspace
	store     *store.Store
	responder *stubResponder
	execCalls *int32
	execBody  *[]byte
}

func newTestEnv(t *testing.T, responder *stubResponder, tokenHandler, execHandler http.HandlerFunc) *testEnv {
	t.Helper()

	if tokenHandler == nil {
		tokenHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"abc","expires_in":3600}`))
		}
	}
	tokenSrv := httptest.NewServer(tokenHandler)
	t.Cleanup(tokenSrv.Close)

	var execCalls int32
	var execBody []byte
	execSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&execCalls, 1)
		body, _ := io.ReadAll(r.Body)
		execBody = body
		if execHandler != nil {
			execHandler(w, r)
			return
		}
		w.Write([]byte(`{"success":true,"productId":"P-100","ratePlans":[{"Id":"RP-100"}],"charges":[{"Id":"C-100"}]}`))
	}))
	t.Cleanup(execSrv.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "workspace.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, err := logger.New("error")
	require.NoError(t, err)

	manager := workspace.NewManager(workspace.Deps{
		Store:     st,
		Responder: responder,
		Tokens:    zuora.NewTokenClient(tokenSrv.URL, time.Second),
		Executor:  zuora.NewExecutorClient(execSrv.URL, time.Second),
		Logger:    log,
		Persona:   "ProductManager",
	})

	return &testEnv{
		ws:        manager.Get("tenant-1"),
		store:     st,
		responder: responder,
		execCalls: &execCalls,
		execBody:  &execBody,
	}
}

func connect(t *testing.T, env *testEnv) {
	t.Helper()
	resp, err := env.ws.Connect(context.Background(), model.Credentials{
		Environment:  model.EnvAPISandbox,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
	require.NoError(t, err)
	require.True(t, resp.Connection.Connected)
}

func TestGreetingSeedsFreshConversation(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)

	view, err := env.ws.ActiveView()
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, model.RoleAssistant, view.Messages[0].Role)
	assert.Equal(t, workspace.Greeting, view.Messages[0].Content)
	assert.Equal(t, store.DefaultTitle, view.Conversation.Title)
}

func TestConnectSuccess(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)

	resp, err := env.ws.Connect(context.Background(), model.Credentials{
		Environment:  model.EnvAPISandbox,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	assert.True(t, resp.Connection.Connected)
	assert.Equal(t, model.EnvAPISandbox, resp.Connection.Environment)
	assert.Equal(t, "https://rest.test.zuora.com", resp.Connection.BaseURL)
	require.NotNil(t, resp.Toast)
	assert.Equal(t, "Successfully connected to Zuora!", resp.Toast.Message)
	assert.Equal(t, model.ToastSuccess, resp.Toast.Type)
	require.NotNil(t, resp.Message, "the first successful connect is announced in the transcript")

	// Reconnecting replaces the token without a second announcement.
	resp, err = env.ws.Connect(context.Background(), model.Credentials{
		Environment:  model.EnvAPISandbox,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)
	assert.True(t, resp.Connection.Connected)
	assert.Nil(t, resp.Message)
}

func TestConnectValidation(t *testing.T) {
	tokenCalls := int32(0)
	env := newTestEnv(t, &stubResponder{}, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Write([]byte(`{"access_token":"abc"}`))
	}, nil)

	resp, err := env.ws.Connect(context.Background(), model.Credentials{Environment: "staging"})
	require.NoError(t, err)
	assert.Contains(t, resp.FieldErrors, "clientId")
	assert.Contains(t, resp.FieldErrors, "clientSecret")
	assert.Contains(t, resp.FieldErrors, "environment")
	assert.Equal(t, int32(0), atomic.LoadInt32(&tokenCalls), "validation failures never reach the token service")
}

func TestConnectFailure(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}, nil)

	resp, err := env.ws.Connect(context.Background(), model.Credentials{
		Environment:  model.EnvSandbox,
		ClientID:     "id",
		ClientSecret: "wrong",
	})
	require.NoError(t, err)
	assert.False(t, resp.Connection.Connected)
	require.NotNil(t, resp.Toast)
	assert.Equal(t, "Connection failed: invalid_client", resp.Toast.Message)
	assert.Equal(t, model.ToastError, resp.Toast.Type)
	require.NotNil(t, resp.Message)
	assert.Equal(t, "Connection failed: invalid_client", resp.Message.Content)
	assert.False(t, env.ws.Connection().Connected)
}

func TestNotConnectedGuard(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)

	resp, err := env.ws.HandleMessage(context.Background(), "create a product")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, model.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, workspace.NotConnectedReply, resp.Messages[1].Content)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.responder.calls), "guarded turns never reach the chat backend")
}

func TestMessageStagesPayloads(t *testing.T) {
	responder := &stubResponder{reply: &chat.Reply{
		Text:           "Here's your product setup.",
		ConversationID: "remote-77",
		Payloads: []model.PayloadItem{
			{ZuoraAPIType: "product_create", Payload: json.RawMessage(`{"Name":"Solar"}`)},
			{ZuoraAPIType: "rate_plan_create", Payload: json.RawMessage(`{"Name":"Annual","ProductId":"@{Product.Id}"}`)},
		},
	}}
	env := newTestEnv(t, responder, nil, nil)
	connect(t, env)

	resp, err := env.ws.HandleMessage(context.Background(), "create a solar product")
	require.NoError(t, err)

	// user turn, remote reply, staging notice
	require.Len(t, resp.Messages, 3)
	assert.True(t, resp.Messages[1].FromAPI)
	assert.Equal(t, "Here's your product setup.", resp.Messages[1].Content)
	assert.Contains(t, resp.Messages[2].Content, "I generated 2 Zuora API payload step(s)")

	require.Len(t, resp.Steps, 2)
	assert.True(t, resp.ShowPayload)
	assert.Equal(t, "product", resp.Steps[0].Type)
	assert.Equal(t, map[string]model.DeferredRef{"ProductId": {Source: "Product", Field: "Id"}}, resp.Steps[1].HiddenFields)

	// The batch is durable; a second turn round-trips it in the chat
	// service's own vocabulary.
	_, err = env.ws.HandleMessage(context.Background(), "add a charge")
	require.NoError(t, err)
	require.Len(t, env.responder.lastTurn.Payloads, 2)
	assert.Equal(t, "product_create", env.responder.lastTurn.Payloads[0].ZuoraAPIType)
	assert.Equal(t, "remote-77", env.responder.lastTurn.ConversationID)
}

func TestScriptedUpdateFlowEndToEnd(t *testing.T) {
	// The backend still sees every turn; an empty reply contributes nothing to
	// the transcript, leaving the scripted replies alone.
	env := newTestEnv(t, &stubResponder{reply: &chat.Reply{}}, nil, nil)
	connect(t, env)

	resp, err := env.ws.StartAction(context.Background(), model.FlowUpdateProduct)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(resp.Messages), 2)
	assert.Contains(t, resp.Messages[1].Content, "Let's start with Update Product")

	for _, input := range []string{"Solar Plan Basic", "ok", "1", "Solar Plan Pro", "yes"} {
		resp, err = env.ws.HandleMessage(context.Background(), input)
		require.NoError(t, err)
	}
	assert.Equal(t, "✅ Update submitted successfully.", resp.Messages[1].Content)

	// Ending the flow archives the transcript and resets to the greeting.
	resp, err = env.ws.HandleMessage(context.Background(), "no")
	require.NoError(t, err)
	assert.Equal(t, "Update complete! What would you like to do next?", resp.Messages[1].Content)

	view, err := env.ws.ActiveView()
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, workspace.Greeting, view.Messages[0].Content)

	flows := env.ws.CompletedFlows()
	require.Len(t, flows, 1)
	assert.Equal(t, "Product Update Flow", flows[0].Title)
	assert.Equal(t, model.FlowUpdateProduct, flows[0].Kind)
	assert.NotEmpty(t, flows[0].Messages)

	assert.Equal(t, int32(6), atomic.LoadInt32(&env.responder.calls), "every turn reaches the backend alongside the scripted advance")
}

func TestSwitchingConversationsArchivesAbandonedFlow(t *testing.T) {
	env := newTestEnv(t, &stubResponder{reply: &chat.Reply{}}, nil, nil)
	connect(t, env)

	_, err := env.ws.StartAction(context.Background(), model.FlowUpdateProduct)
	require.NoError(t, err)
	for _, input := range []string{"Solar Plan Basic", "ok", "1"} {
		_, err = env.ws.HandleMessage(context.Background(), input)
		require.NoError(t, err)
	}

	// Switching away mid-wizard ends the flow; its transcript still lands in
	// the archive instead of vanishing.
	view, err := env.ws.CreateConversation()
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)

	flows := env.ws.CompletedFlows()
	require.Len(t, flows, 1)
	assert.Equal(t, model.FlowUpdateProduct, flows[0].Kind)
	assert.Equal(t, "Updated Name for Solar Plan Basic", flows[0].Summary)
	require.NotEmpty(t, flows[0].Messages)
	for _, msg := range flows[0].Messages {
		assert.NotEqual(t, workspace.Greeting, msg.Content)
	}
}

func TestFlowCompletionDiscardsLateReply(t *testing.T) {
	// The backend reply for the terminal wizard turn lands after the flow has
	// archived and reset the transcript; it must not trail the fresh greeting.
	env := newTestEnv(t, &stubResponder{reply: &chat.Reply{Text: "late remote reply"}}, nil, nil)
	connect(t, env)

	_, err := env.ws.StartAction(context.Background(), model.FlowUpdateProduct)
	require.NoError(t, err)
	for _, input := range []string{"Solar Plan Basic", "ok", "1", "Solar Plan Pro", "yes", "no"} {
		_, err = env.ws.HandleMessage(context.Background(), input)
		require.NoError(t, err)
	}

	view, err := env.ws.ActiveView()
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, workspace.Greeting, view.Messages[0].Content)

	// The archive ends with the terminal scripted reply; the in-flight backend
	// reply for that turn lands nowhere.
	flows := env.ws.CompletedFlows()
	require.Len(t, flows, 1)
	require.NotEmpty(t, flows[0].Messages)
	last := flows[0].Messages[len(flows[0].Messages)-1]
	assert.Equal(t, "Update complete! What would you like to do next?", last.Content)
}

func TestExecuteClassic(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)
	connect(t, env)

	steps, err := env.ws.Draft(model.DraftRequest{Name: "Solar Basic", SKU: "SOLAR-1"})
	require.NoError(t, err)
	require.Len(t, steps, 3)

	resp, err := env.ws.Execute(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "P-100", resp.Result.ProductID)
	assert.Equal(t, []string{"RP-100"}, resp.Result.RatePlanIDs)
	assert.Equal(t, "https://apisandbox.zuora.com/apps/Product.do?method=view&id=P-100", resp.Result.ConsoleURL)
	assert.Equal(t, model.ToastSuccess, resp.Toast.Type)
	assert.Contains(t, resp.Message.Content, "P-100")
	assert.Contains(t, resp.Message.Content, resp.Result.ConsoleURL)

	// The executor saw the structured classic body with the deferred
	// references reinjected.
	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(*env.execBody, &sent))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(sent["body"], &body))
	var ratePlan map[string]any
	require.NoError(t, json.Unmarshal(body["ratePlan"], &ratePlan))
	assert.Equal(t, "@{Product.Id}", ratePlan["ProductId"])
}

func TestExecuteWithoutSteps(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)
	connect(t, env)

	resp, err := env.ws.Execute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, resp.Result)
	assert.Equal(t, model.ToastError, resp.Toast.Type)
	assert.Contains(t, resp.Message.Content, "No payload steps staged yet")
	assert.Equal(t, int32(0), atomic.LoadInt32(env.execCalls))
}

func TestExecuteMissingProductFailsBeforeNetwork(t *testing.T) {
	responder := &stubResponder{reply: &chat.Reply{
		Text: "rate plan only",
		Payloads: []model.PayloadItem{
			{ZuoraAPIType: "rate_plan_create", Payload: json.RawMessage(`{"Name":"Annual"}`)},
		},
	}}
	env := newTestEnv(t, responder, nil, nil)
	connect(t, env)

	_, err := env.ws.HandleMessage(context.Background(), "just a rate plan")
	require.NoError(t, err)

	resp, err := env.ws.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ToastError, resp.Toast.Type)
	assert.Contains(t, resp.Message.Content, "no Product payload staged")
	assert.Equal(t, int32(0), atomic.LoadInt32(env.execCalls), "a batch without a product never reaches the executor")
}

func TestExecuteInvalidStepFailsBeforeNetwork(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)
	connect(t, env)

	_, err := env.ws.Draft(model.DraftRequest{Name: "P"})
	require.NoError(t, err)

	steps, _, err := env.ws.Steps()
	require.NoError(t, err)
	_, err = env.ws.EditStep(steps[0].ID, "{broken")
	require.NoError(t, err, "invalid JSON is a step state, not an edit error")

	resp, err := env.ws.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ToastError, resp.Toast.Type)
	assert.Contains(t, resp.Message.Content, "invalid JSON")
	assert.Equal(t, int32(0), atomic.LoadInt32(env.execCalls))
}

func TestStaleReplyDiscarded(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)
	connect(t, env)

	// The backend reply lands after the user has switched to a fresh
	// conversation; it must not leak into either transcript.
	env.responder.onCall = func() {
		_, err := env.ws.CreateConversation()
		require.NoError(t, err)
	}

	resp, err := env.ws.HandleMessage(context.Background(), "slow question")
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1, "only the user's own message survives")
	assert.Equal(t, model.RoleUser, resp.Messages[0].Role)

	view, err := env.ws.ActiveView()
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, workspace.Greeting, view.Messages[0].Content)
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, &stubResponder{}, nil, nil)
	connect(t, env)

	first, err := env.ws.ActiveView()
	require.NoError(t, err)

	second, err := env.ws.CreateConversation()
	require.NoError(t, err)
	assert.NotEqual(t, first.Conversation.ID, second.Conversation.ID)

	list, err := env.ws.ListConversations()
	require.NoError(t, err)
	assert.Len(t, list.Conversations, 2)
	assert.Equal(t, second.Conversation.ID, list.ActiveID)

	// Switching back restores the first transcript.
	view, err := env.ws.SelectConversation(first.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Conversation.ID, view.Conversation.ID)

	// Deleting the active conversation activates a fresh one.
	view, err = env.ws.DeleteConversation(first.Conversation.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Conversation.ID, view.Conversation.ID)

	list, err = env.ws.ListConversations()
	require.NoError(t, err)
	for _, c := range list.Conversations {
		assert.NotEqual(t, first.Conversation.ID, c.ID)
	}
}

func TestStagedStepsSurviveConversationSwitch(t *testing.T) {
	responder := &stubResponder{reply: &chat.Reply{
		Text: "staged",
		Payloads: []model.PayloadItem{
			{ZuoraAPIType: "product_create", Payload: json.RawMessage(`{"Name":"Solar"}`)},
		},
	}}
	env := newTestEnv(t, responder, nil, nil)
	connect(t, env)

	first, err := env.ws.ActiveView()
	require.NoError(t, err)
	_, err = env.ws.HandleMessage(context.Background(), "create it")
	require.NoError(t, err)

	_, err = env.ws.CreateConversation()
	require.NoError(t, err)
	steps, _, err := env.ws.Steps()
	require.NoError(t, err)
	assert.Empty(t, steps, "a fresh conversation has no staged batch")

	// Switching back rebuilds the steps from the durable batch.
	view, err := env.ws.SelectConversation(first.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, view.Steps, 1)
	assert.Equal(t, "product", view.Steps[0].Type)
	assert.True(t, view.ShowPayload)
}
