package runtime_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ringwire/callflow/internal/runtime"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refundFlow = `[
  {"id":"start","kind":"start","data":{
    "dialogue_type":"static","text":"Hi, how can I help?",
    "goal":"Find out why the customer is calling",
    "transitions":[
      {"id":"t-refund","condition":"refund","next_node":"bye"},
      {"id":"t-human","condition":"human","next_node":"human"}
    ]}},
  {"id":"human","kind":"call_transfer","data":{"phone_number":"+15550100","transfer_type":"cold","text":"Connecting you now","dialogue_type":"static"}},
  {"id":"bye","kind":"ending","data":{"dialogue_type":"static","text":"Your refund is on its way. Goodbye."}}
]`

func TestSession_StartSpeaksAndListens(t *testing.T) {
	s := runtime.NewSession(mustGraph(t, refundFlow), "call-1", "agent-a", runtime.WithJudge(&keywordJudge{}))
	defer s.Close()

	res, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "start", res.NodeID)
	assert.Equal(t, domain.StatusActive, res.Status)
	assert.Equal(t, []string{domain.ActionSpeak, domain.ActionRequestInput}, actionTypes(res))
	assert.Equal(t, domain.Speech{Text: "Hi, how can I help?", Verbatim: true}, res.Actions[0].Payload)

	_, err = s.Start(context.Background())
	assert.Error(t, err, "a call starts once")
}

func TestSession_ConditionalTransition(t *testing.T) {
	judge := &keywordJudge{}
	s := runtime.NewSession(mustGraph(t, refundFlow), "call-1", "agent-a", runtime.WithJudge(judge))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	res, err := s.Respond(ctx, domain.Input{Text: "I would like a refund please"})
	require.NoError(t, err)

	assert.Equal(t, "bye", res.NodeID)
	assert.Equal(t, domain.StatusEnded, res.Status)
	end := findAction(t, res, domain.ActionEndCall).Payload.(domain.EndCall)
	assert.Equal(t, domain.EndReasonCompleted, end.Reason)
	require.NotNil(t, end.Speech)
	assert.True(t, end.Speech.Verbatim)
	assert.EqualValues(t, 1, judge.calls.Load(), "evaluation stops at the first satisfied transition")

	require.NotNil(t, res.Diff)
	require.NotNil(t, res.Diff.CurrentNodeID)
	assert.Equal(t, "bye", *res.Diff.CurrentNodeID)

	snap := s.Snapshot()
	assert.Equal(t, []string{"start", "bye"}, snap.History)
	assert.Equal(t, domain.EndReasonCompleted, snap.Outcome)

	_, err = s.Respond(ctx, domain.Input{Text: "hello?"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestSession_TransferCall(t *testing.T) {
	s := runtime.NewSession(mustGraph(t, refundFlow), "call-1", "agent-a", runtime.WithJudge(&keywordJudge{}))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	res, err := s.Respond(ctx, domain.Input{Text: "get me a human"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTransferred, res.Status)
	transfer := findAction(t, res, domain.ActionTransferCall).Payload.(domain.CallTransfer)
	assert.Equal(t, "+15550100", transfer.PhoneNumber)
	assert.Equal(t, domain.TransferCold, transfer.TransferType)
	assert.True(t, s.Done())
}

func TestSession_GoalNudgeThenDeadlock(t *testing.T) {
	s := runtime.NewSession(mustGraph(t, refundFlow), "call-1", "agent-a",
		runtime.WithJudge(&keywordJudge{}),
		runtime.WithMaxUnresolvedTurns(2),
	)
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := s.Respond(ctx, domain.Input{Text: "what's the weather like"})
		require.NoError(t, err)
		assert.Equal(t, "start", res.NodeID)
		assert.Equal(t, []string{domain.ActionGoalNudge, domain.ActionRequestInput}, actionTypes(res))
		assert.Equal(t, "Find out why the customer is calling", res.Actions[0].Payload)
	}

	res, err := s.Respond(ctx, domain.Input{Text: "still the weather"})
	var deadlock *domain.ResolutionDeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.ErrorIs(t, err, domain.ErrResolutionDeadlock)
	assert.Equal(t, "start", deadlock.NodeID)
	assert.Equal(t, 3, deadlock.Attempts)

	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)
	end := findAction(t, res, domain.ActionEndCall).Payload.(domain.EndCall)
	assert.Equal(t, domain.EndReasonFlowDefect, end.Reason)
}

func TestSession_NoGoalDeadlocksOnFirstMiss(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"Hi",
	    "transitions":[{"condition":"refund","next_node":"bye"}]}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithJudge(&keywordJudge{}))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	res, err := s.Respond(ctx, domain.Input{Text: "what's the weather like"})
	var deadlock *domain.ResolutionDeadlockError
	require.ErrorAs(t, err, &deadlock)
	assert.Equal(t, "start", deadlock.NodeID)
	assert.Equal(t, 1, deadlock.Attempts)

	require.NotNil(t, res)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, []string{domain.ActionEndCall}, actionTypes(res))
	assert.Equal(t, domain.EndReasonFlowDefect, res.Actions[0].Payload.(domain.EndCall).Reason)
}

func TestSession_FixedIgnoresJudge(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"Greet the caller","auto_transition_to":"menu"}},
	  {"id":"menu","kind":"conversation","data":{"text":"Offer the menu","transitions":[{"condition":"anything","next_node":"bye"}]}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	judge := &keywordJudge{}
	hits := []string{}
	hooks := domain.LifecycleHooks{
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			hits = append(hits, e.From+">"+e.To+":"+e.Rule)
		},
	}
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithJudge(judge), runtime.WithLifecycleHooks(hooks))
	defer s.Close()

	res, err := s.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "menu", res.NodeID)
	assert.Equal(t, []string{domain.ActionSpeak, domain.ActionSpeak, domain.ActionRequestInput}, actionTypes(res))
	assert.False(t, res.Actions[0].Payload.(domain.Speech).Verbatim, "prompt is the default dialogue type")
	assert.Zero(t, judge.calls.Load())
	assert.Equal(t, []string{"start>menu:fixed"}, hits)
}

func TestSession_AfterAnyResponse(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"Ask how their day is","auto_transition_after_response":"bye"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	judge := &keywordJudge{}
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithJudge(judge))
	defer s.Close()

	ctx := context.Background()
	res, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "start", res.NodeID)
	assert.True(t, s.Snapshot().Visit.AwaitingResponse)

	res, err = s.Respond(ctx, domain.Input{Text: "meh"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)
	assert.Zero(t, judge.calls.Load())
}

func TestSession_CheckVariablesGate(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{
	    "text":"Ask for the order number",
	    "goal":"Get the order number",
	    "extract_variables":[{"name":"order_id"}],
	    "transitions":[{"condition":"yes","next_node":"bye","check_variables":["order_id"]}]}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	judge := &keywordJudge{}
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithJudge(judge), runtime.WithExtractor(pairExtractor))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	res, err := s.Respond(ctx, domain.Input{Text: "yes"})
	require.NoError(t, err)
	assert.Equal(t, "start", res.NodeID)
	assert.Equal(t, []string{domain.ActionGoalNudge, domain.ActionRequestInput}, actionTypes(res))
	assert.Zero(t, judge.calls.Load(), "gated transitions never reach the judge")

	res, err = s.Respond(ctx, domain.Input{Text: "yes order_id=A42"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)
	assert.Equal(t, "A42", s.Snapshot().Variables["order_id"])
	assert.Equal(t, "A42", res.Diff.Variables["order_id"])
}

type orderServer struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	bodies []map[string]any
}

func newOrderServer(t *testing.T, response string) *orderServer {
	t.Helper()
	srv := &orderServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.hits.Add(1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		srv.mu.Lock()
		srv.bodies = append(srv.bodies, body)
		srv.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func orderFlow(url string) string {
	return `[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"Order desk.","auto_transition_to":"lookup"}},
	  {"id":"lookup","kind":"function","data":{
	    "webhook":{"url":"` + url + `","body_template":"{\"id\":\"{{order_id}}\",\"call\":\"{{call_id}}\"}",
	      "speak_during_execution":true,"dialogue_type":"static","dialogue_text":"One moment."},
	    "extract_variables":[{"name":"order_id","required":true,"reprompt_type":"static","reprompt_text":"What is your order number?"}],
	    "auto_transition_to":"route"}},
	  {"id":"route","kind":"logic_split","data":{
	    "conditions":[{"variable":"webhook_response.amount","value_type":"number","operator":"greater_than","value":"100","next_node":"human"}],
	    "default_next_node":"bye"}},
	  {"id":"human","kind":"agent_transfer","data":{"agent_id":"agent-refunds"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
}

func TestSession_FunctionGatesWebhook(t *testing.T) {
	srv := newOrderServer(t, `{"amount":150}`)
	s := runtime.NewSession(mustGraph(t, orderFlow(srv.URL)), "call-7", "agent-a", runtime.WithExtractor(pairExtractor))
	defer s.Close()

	ctx := context.Background()
	res, err := s.Start(ctx)
	require.NoError(t, err)

	assert.Equal(t, "lookup", res.NodeID)
	assert.True(t, res.Gated)
	assert.Equal(t, []string{"order_id"}, res.Missing)
	reprompt := findAction(t, res, domain.ActionReprompt).Payload.(domain.Reprompt)
	assert.Equal(t, domain.Reprompt{Variable: "order_id", Text: "What is your order number?", Verbatim: true}, reprompt)
	assert.Zero(t, srv.hits.Load(), "nothing is sent while required variables are missing")

	res, err = s.Respond(ctx, domain.Input{Text: "it is order_id=A42"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Equal(t, map[string]any{"id": "A42", "call": "call-7"}, srv.bodies[0])
	require.Len(t, res.Webhooks, 1)
	assert.True(t, res.Webhooks[0].Success)
	assert.Equal(t, "One moment.", res.Actions[0].Payload.(domain.Speech).Text)

	assert.Equal(t, "human", res.NodeID)
	assert.Equal(t, domain.StatusTransferred, res.Status)
	transfer := findAction(t, res, domain.ActionTransferAgent).Payload.(domain.AgentTransfer)
	assert.Equal(t, "agent-refunds", transfer.AgentID)
	assert.Equal(t, []string{"start", "lookup", "route", "human"}, s.Snapshot().History)
}

func TestSession_FunctionGateCountsTowardRetryBound(t *testing.T) {
	srv := newOrderServer(t, `{}`)
	s := runtime.NewSession(mustGraph(t, orderFlow(srv.URL)), "call-7", "agent-a",
		runtime.WithExtractor(pairExtractor),
		runtime.WithMaxUnresolvedTurns(1),
	)
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	res, err := s.Respond(ctx, domain.Input{Text: "I don't know"})
	require.NoError(t, err)
	assert.True(t, res.Gated)

	_, err = s.Respond(ctx, domain.Input{Text: "really no idea"})
	assert.ErrorIs(t, err, domain.ErrResolutionDeadlock)
	assert.Zero(t, srv.hits.Load())
}

func TestSession_SchemaBodyBlocksWebhook(t *testing.T) {
	srv := newOrderServer(t, `{}`)
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"lookup"}},
	  {"id":"lookup","kind":"function","data":{
	    "webhook":{"url":"` + srv.URL + `","goal":"Get the order number",
	      "body_template":"{\"type\":\"object\",\"properties\":{\"order_id\":{\"type\":\"string\"}}}"},
	    "extract_variables":[{"name":"order_id"}],
	    "auto_transition_to":"bye"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithExtractor(pairExtractor))
	defer s.Close()

	ctx := context.Background()
	res, err := s.Start(ctx)
	require.NoError(t, err)
	assert.True(t, res.Gated)
	assert.Equal(t, []string{"order_id"}, res.Missing)
	require.Len(t, res.Webhooks, 1)
	assert.Equal(t, []string{"order_id"}, res.Webhooks[0].Blocked)
	assert.Equal(t, "Get the order number", findAction(t, res, domain.ActionGoalNudge).Payload)
	assert.Zero(t, srv.hits.Load())

	res, err = s.Respond(ctx, domain.Input{Text: "order_id=B7"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)
	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Equal(t, map[string]any{"order_id": "B7"}, srv.bodies[0])
}

func TestSession_SchemaBodyBlocksGetWebhook(t *testing.T) {
	srv := newOrderServer(t, `{}`)
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"lookup"}},
	  {"id":"lookup","kind":"function","data":{
	    "webhook":{"url":"` + srv.URL + `","method":"GET","goal":"Get the zip code",
	      "body_template":"{\"type\":\"object\",\"properties\":{\"zip\":{}}}"},
	    "extract_variables":[{"name":"zip"}],
	    "auto_transition_to":"bye"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithExtractor(pairExtractor))
	defer s.Close()

	ctx := context.Background()
	res, err := s.Start(ctx)
	require.NoError(t, err)
	assert.True(t, res.Gated)
	assert.Equal(t, "lookup", res.NodeID)
	assert.Zero(t, srv.hits.Load())

	res, err = s.Respond(ctx, domain.Input{Text: "zip=94107"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)
	assert.EqualValues(t, 1, srv.hits.Load())
	assert.Nil(t, srv.bodies[0], "GET carries no body")
}

func TestSession_AsyncWebhook(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	}))
	defer srv.Close()

	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"notify"}},
	  {"id":"notify","kind":"function","data":{
	    "webhook":{"url":"` + srv.URL + `","wait_for_result":false,"response_variable":"ticket"},
	    "auto_transition_to":"wait"}},
	  {"id":"wait","kind":"conversation","data":{"text":"Chat while the ticket is filed","goal":"Keep the caller company"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a")

	res, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wait", res.NodeID)
	require.Len(t, res.Webhooks, 1)
	assert.True(t, res.Webhooks[0].Async)
	assert.Equal(t, []string{"ticket"}, s.Snapshot().Pending)
	assert.False(t, s.Variables().IsBound("ticket"))

	close(release)
	require.Eventually(t, func() bool {
		return s.Variables().IsBound("ticket.status")
	}, 2*time.Second, 10*time.Millisecond)

	val, _ := s.Variables().Lookup("ticket.status")
	assert.Equal(t, "queued", val)
	assert.Empty(t, s.Snapshot().Pending)

	s.Close()
	assert.Equal(t, domain.EndReasonHangup, s.Snapshot().Outcome)
}

func TestSession_FailedWebhookUnbindsResponseOnRevisit(t *testing.T) {
	for _, wait := range []bool{true, false} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) > 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"status":"ok"}`)
		}))

		doc := `[
		  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"lookup"}},
		  {"id":"lookup","kind":"function","data":{
		    "webhook":{"url":"` + srv.URL + `","wait_for_result":` + strconv.FormatBool(wait) + `},
		    "auto_transition_to":"menu"}},
		  {"id":"menu","kind":"conversation","data":{"text":"Anything else?","goal":"Offer another lookup",
		    "transitions":[{"id":"t-again","condition":"again","next_node":"lookup"}]}}
		]`
		s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithJudge(&keywordJudge{}))
		settled := func() bool { return len(s.Snapshot().Pending) == 0 }

		ctx := context.Background()
		_, err := s.Start(ctx)
		require.NoError(t, err)
		require.Eventually(t, settled, 2*time.Second, 10*time.Millisecond)
		val, ok := s.Variables().Lookup("webhook_response.status")
		require.True(t, ok, "wait=%v", wait)
		assert.Equal(t, "ok", val)

		res, err := s.Respond(ctx, domain.Input{Text: "again please"})
		require.NoError(t, err)
		assert.Equal(t, "menu", res.NodeID)
		require.Eventually(t, settled, 2*time.Second, 10*time.Millisecond)
		assert.EqualValues(t, 2, hits.Load())
		assert.False(t, s.Variables().IsBound("webhook_response.status"), "wait=%v: a failed call must not leave the earlier response", wait)
		assert.NotContains(t, s.Snapshot().Variables, domain.DefaultResponseVariable)

		s.Close()
		srv.Close()
	}
}

func TestSession_SendSMSWithoutRouteDeadlocks(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"sms"}},
	  {"id":"sms","kind":"send_sms","data":{"to":"{{phone}}","message":"Your call id is {{call_id}}",
	    "transitions":[{"condition":"sent","next_node":"bye"}]}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	g := mustGraph(t, doc)
	state := domain.NewSessionState("call-9", "agent-a", g.StartID())
	state.Variables["phone"] = "+15550199"
	s, err := runtime.RestoreSession(g, state)
	require.NoError(t, err)
	defer s.Close()

	// Restored sessions are already started; drive the start node with a caller turn.
	res, err := s.Respond(context.Background(), domain.Input{Text: "hello"})
	assert.ErrorIs(t, err, domain.ErrResolutionDeadlock)

	sms := findAction(t, res, domain.ActionSendSMS).Payload.(domain.SMS)
	assert.Equal(t, domain.SMS{To: "+15550199", Message: "Your call id is call-9"}, sms)
	assert.Equal(t, domain.StatusFailed, res.Status)
}

func TestSession_PressDigit(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"menu"}},
	  {"id":"menu","kind":"press_digit","data":{"dialogue_type":"static","text":"Press 1 for sales, 2 for support",
	    "digits":[{"digit":"1","next_node":"bye"},{"digit":"2","next_node":"support"}]}},
	  {"id":"support","kind":"agent_transfer","data":{"agent_id":"support-bot"}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a")
	defer s.Close()

	ctx := context.Background()
	res, err := s.Start(ctx)
	require.NoError(t, err)
	input := findAction(t, res, domain.ActionRequestInput).Payload.(domain.InputRequest)
	assert.Equal(t, domain.InputRequest{Type: domain.InputDTMF, Digits: []string{"1", "2"}}, input)

	// An unmapped key re-asks the menu; it counts toward the retry bound.
	res, err = s.Respond(ctx, domain.Input{Digit: "9"})
	require.NoError(t, err)
	assert.Equal(t, "menu", res.NodeID)
	assert.Equal(t, []string{domain.ActionRequestInput}, actionTypes(res))
	assert.Equal(t, 1, s.Snapshot().Visit.UnresolvedTurns)

	res, err = s.Respond(ctx, domain.Input{Digit: "2"})
	require.NoError(t, err)
	assert.Equal(t, "support", res.NodeID)
	assert.Equal(t, "support-bot", findAction(t, res, domain.ActionTransferAgent).Payload.(domain.AgentTransfer).AgentID)
}

func TestSession_PressDigitRetryBound(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"text":"hi","auto_transition_to":"menu"}},
	  {"id":"menu","kind":"press_digit","data":{"text":"Press 1","digits":[{"digit":"1","next_node":"bye"}]}},
	  {"id":"bye","kind":"ending","data":{}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithMaxUnresolvedTurns(1))
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)

	_, err = s.Respond(ctx, domain.Input{Digit: "5"})
	require.NoError(t, err)
	_, err = s.Respond(ctx, domain.Input{Digit: "5"})
	assert.ErrorIs(t, err, domain.ErrResolutionDeadlock)
	assert.Equal(t, domain.StatusFailed, s.Snapshot().Status)
}

func TestSession_ChainedTransitionsAreBounded(t *testing.T) {
	doc := `[
	  {"id":"start","kind":"start","data":{"auto_transition_to":"a"}},
	  {"id":"a","kind":"conversation","data":{"auto_transition_to":"b"}},
	  {"id":"b","kind":"conversation","data":{"auto_transition_to":"a"}}
	]`
	s := runtime.NewSession(mustGraph(t, doc), "call-1", "agent-a", runtime.WithMaxChainedTransitions(5))
	defer s.Close()

	res, err := s.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrResolutionDeadlock)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Len(t, s.Snapshot().History, 6)
}

func TestSession_LifecycleHooks(t *testing.T) {
	var mu sync.Mutex
	var entered, left []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			entered = append(entered, e.NodeID)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			mu.Lock()
			defer mu.Unlock()
			left = append(left, e.NodeID)
		},
	}
	s := runtime.NewSession(mustGraph(t, refundFlow), "call-1", "agent-a",
		runtime.WithJudge(&keywordJudge{}),
		runtime.WithLifecycleHooks(hooks),
	)
	defer s.Close()

	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)
	_, err = s.Respond(ctx, domain.Input{Text: "refund"})
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "bye"}, entered)
	assert.Equal(t, []string{"start"}, left)
}

func TestRestoreSession(t *testing.T) {
	g := mustGraph(t, refundFlow)
	first := runtime.NewSession(g, "call-1", "agent-a", runtime.WithJudge(&keywordJudge{}))
	_, err := first.Start(context.Background())
	require.NoError(t, err)
	snap := first.Snapshot()
	first.Close()

	snap.Status = domain.StatusActive
	snap.Pending = []string{"webhook_response"}
	s, err := runtime.RestoreSession(g, snap, runtime.WithJudge(&keywordJudge{}))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, s.Snapshot().Pending, "in-flight results are not resumed")

	res, err := s.Respond(context.Background(), domain.Input{Text: "refund"})
	require.NoError(t, err)
	assert.Equal(t, "bye", res.NodeID)

	snap.CurrentNodeID = "gone"
	_, err = runtime.RestoreSession(g, snap)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestRestoreSession_PinsFlowVersion(t *testing.T) {
	g := mustGraph(t, refundFlow)
	s := runtime.NewSession(g, "call-1", "agent-a")
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	snap := s.Snapshot()
	s.Close()

	assert.Equal(t, g.Version(), snap.FlowVersion)
	require.NotNil(t, snap.Flow)
	assert.Len(t, snap.Flow.Nodes, 3)

	other := mustGraph(t, `[
	  {"id":"start","kind":"start","data":{"dialogue_type":"static","text":"v2","goal":"anything","transitions":[
	    {"id":"t","condition":"refund","next_node":"v2end"}]}},
	  {"id":"v2end","kind":"ending","data":{"dialogue_type":"static","text":"bye"}}
	]`)
	_, err = runtime.RestoreSession(other, snap)
	assert.ErrorIs(t, err, runtime.ErrFlowVersionMismatch)
}
