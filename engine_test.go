package callflow_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/judge"
	"github.com/ringwire/callflow/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportFlow = `[
  {"id":"start","kind":"start","data":{
    "dialogue_type":"static","text":"Thanks for calling. What do you need?",
    "goal":"Learn why the customer called",
    "transitions":[
      {"id":"to-refund","condition":"user_message contains 'refund'","next_node":"bye"},
      {"id":"to-human","condition":"user_message contains 'agent'","next_node":"human"}
    ]}},
  {"id":"human","kind":"call_transfer","data":{"phone_number":"+15550199","dialogue_type":"static","text":"Transferring you"}},
  {"id":"bye","kind":"ending","data":{"dialogue_type":"static","text":"Refund issued. Bye!"}}
]`

type recordingDispatcher struct {
	mu      sync.Mutex
	actions []string
	fail    bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req domain.ActionRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, req.Type)
	if d.fail {
		return errors.New("telephony unavailable")
	}
	return nil
}

func newEngine(t *testing.T, opts ...callflow.Option) *callflow.Engine {
	t.Helper()
	flow, err := domain.ParseFlowJSON([]byte(supportFlow))
	require.NoError(t, err)
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{"support": flow})
	require.NoError(t, err)

	opts = append([]callflow.Option{callflow.WithJudge(judge.NewExpr())}, opts...)
	eng, err := callflow.New(repo, opts...)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func TestNew_RequiresRepository(t *testing.T) {
	_, err := callflow.New(nil)
	assert.Error(t, err)
}

func TestEngine_CallLifecycle(t *testing.T) {
	ctx := context.Background()
	dispatcher := &recordingDispatcher{}
	eng := newEngine(t,
		callflow.WithDispatcher(dispatcher),
		callflow.WithCallIDGenerator(func() string { return "call-42" }),
	)

	res, err := eng.StartCall(ctx, "support")
	require.NoError(t, err)
	assert.Equal(t, "call-42", res.CallID)
	assert.Equal(t, "start", res.NodeID)

	res, err = eng.Respond(ctx, "call-42", domain.Input{Text: "I want a refund"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)
	assert.Equal(t, domain.StatusEnded, res.Status)

	state, err := eng.GetCall(ctx, "call-42")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "bye"}, state.History)
	assert.Equal(t, domain.EndReasonCompleted, state.Outcome)

	_, err = eng.Respond(ctx, "call-42", domain.Input{Text: "hello?"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	assert.Equal(t, []string{
		domain.ActionSpeak, domain.ActionRequestInput,
		domain.ActionEndCall,
	}, dispatcher.actions)
}

func TestEngine_UnknownAgentAndCall(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	_, err := eng.StartCall(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)

	_, err = eng.Respond(ctx, "missing", domain.Input{Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = eng.GetCall(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_EndCall(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	res, err := eng.StartCall(ctx, "support")
	require.NoError(t, err)

	require.NoError(t, eng.EndCall(ctx, res.CallID))
	state, err := eng.GetCall(ctx, res.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, state.Status)
	assert.Equal(t, domain.EndReasonHangup, state.Outcome)

	require.NoError(t, eng.EndCall(ctx, res.CallID), "ending twice is a no-op")
	_, err = eng.Respond(ctx, res.CallID, domain.Input{Text: "refund"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestEngine_RestoresAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	flow, err := domain.ParseFlowJSON([]byte(supportFlow))
	require.NoError(t, err)
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{"support": flow})
	require.NoError(t, err)

	first, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	second, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	defer first.Close()
	defer second.Close()

	res, err := first.StartCall(ctx, "support")
	require.NoError(t, err)

	res, err = second.Respond(ctx, res.CallID, domain.Input{Text: "get me an agent"})
	require.NoError(t, err)
	assert.Equal(t, "human", res.NodeID)
	assert.Equal(t, domain.StatusTransferred, res.Status)

	_, err = first.Respond(ctx, res.CallID, domain.Input{Text: "still there?"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed, "the stale replica must read the stored status")
}

func TestEngine_FlowSavedMidCallOnlyAffectsNewCalls(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	flow, err := domain.ParseFlowJSON([]byte(supportFlow))
	require.NoError(t, err)
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{"support": flow})
	require.NoError(t, err)

	first, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	second, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	defer first.Close()
	defer second.Close()

	res, err := first.StartCall(ctx, "support")
	require.NoError(t, err)
	callID := res.CallID

	v2, err := domain.ParseFlowJSON([]byte(`[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"New greeting","goal":"Ask why",
	    "transitions":[{"id":"to-v2","condition":"user_message contains 'refund'","next_node":"v2end"}]}},
	  {"id":"v2end","kind":"ending","data":{"dialogue_type":"static","text":"v2 bye"}}
	]`))
	require.NoError(t, err)
	require.NoError(t, first.SaveFlow(ctx, "support", v2))

	res, err = second.Respond(ctx, callID, domain.Input{Text: "refund"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID, "a call in progress keeps the flow it started on")

	res, err = second.StartCall(ctx, "support")
	require.NoError(t, err)
	res, err = first.Respond(ctx, res.CallID, domain.Input{Text: "refund"})
	require.NoError(t, err)
	assert.Equal(t, "v2end", res.NodeID)
}

func TestEngine_StaleLiveSessionIsRestored(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	flow, err := domain.ParseFlowJSON([]byte(supportFlow))
	require.NoError(t, err)
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{"support": flow})
	require.NoError(t, err)

	first, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	second, err := callflow.New(repo, callflow.WithStateStore(store), callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	defer first.Close()
	defer second.Close()

	res, err := first.StartCall(ctx, "support")
	require.NoError(t, err)
	callID := res.CallID

	_, err = second.Respond(ctx, callID, domain.Input{Text: "hmm"})
	require.NoError(t, err)

	_, err = first.Respond(ctx, callID, domain.Input{Text: "still thinking"})
	require.NoError(t, err)

	state, err := first.GetCall(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Visit.UnresolvedTurns, "turns from both replicas are counted")
}

func TestEngine_DeadlockReturnsResultAndError(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, callflow.WithMaxUnresolvedTurns(1))

	res, err := eng.StartCall(ctx, "support")
	require.NoError(t, err)

	_, err = eng.Respond(ctx, res.CallID, domain.Input{Text: "weather?"})
	require.NoError(t, err)

	res, err = eng.Respond(ctx, res.CallID, domain.Input{Text: "still weather"})
	var deadlock *domain.ResolutionDeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, "start", deadlock.NodeID)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)

	state, err := eng.GetCall(ctx, res.CallID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndReasonFlowDefect, state.Outcome)
}

func TestEngine_DispatchFailureDoesNotFailTurn(t *testing.T) {
	eng := newEngine(t, callflow.WithDispatcher(&recordingDispatcher{fail: true}))

	_, err := eng.StartCall(context.Background(), "support")
	assert.NoError(t, err)
}

func TestEngine_SaveFlowValidates(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	broken, err := domain.ParseFlowJSON([]byte(`[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"hi","auto_transition_to":"ghost"}}
	]`))
	require.NoError(t, err)

	err = eng.SaveFlow(ctx, "broken", broken)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(domain.ViolationDanglingTarget))

	_, err = eng.GetFlow(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound, "invalid flows are never stored")

	valid, err := domain.ParseFlowJSON([]byte(`[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"hi","auto_transition_to":"end"}},
	  {"id":"end","kind":"ending","data":{"dialogue_type":"static","text":"bye"}}
	]`))
	require.NoError(t, err)
	require.NoError(t, eng.SaveFlow(ctx, "greeter", valid))

	agents, err := eng.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"greeter", "support"}, agents)

	res, err := eng.StartCall(ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, res.Status)
}

func TestEngine_TestWebhook(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	eng := newEngine(t)
	cfg := domain.WebhookConfig{
		URL:            srv.URL,
		Method:         http.MethodPost,
		BodyTemplate:   `{"order":"{{order_id}}","call":"{{call_id}}"}`,
		TimeoutSeconds: 2,
	}
	res, err := eng.TestWebhook(context.Background(), cfg, map[string]any{"order_id": "A-17"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"ok": true}, res.Response)
	assert.JSONEq(t, `{"order":"A-17","call":"webhook-test"}`, string(got))

	cfg.BodyTemplate = `{"type":"object","properties":{"order_id":{"type":"string"}}}`
	_, err = eng.TestWebhook(context.Background(), cfg, nil)
	var missing *webhook.MissingPropertiesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"order_id"}, missing.Missing)
}

func TestEngine_RejectsOversizedInput(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, callflow.WithMaxInputSize(8))

	res, err := eng.StartCall(ctx, "support")
	require.NoError(t, err)

	_, err = eng.Respond(ctx, res.CallID, domain.Input{Text: "this is far too long"})
	assert.ErrorIs(t, err, domain.ErrInputTooLarge)
}
