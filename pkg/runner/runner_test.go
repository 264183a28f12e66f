package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/judge"
	"github.com/ringwire/callflow/pkg/runner"
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

func newEngine(t *testing.T) *callflow.Engine {
	t.Helper()
	flow, err := domain.ParseFlowJSON([]byte(supportFlow))
	require.NoError(t, err)
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{"support": flow})
	require.NoError(t, err)
	eng, err := callflow.New(repo, callflow.WithJudge(judge.NewExpr()))
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func TestRunner_TextTranscript(t *testing.T) {
	out := &bytes.Buffer{}
	r := runner.New(newEngine(t), runner.WithHandler(
		runner.NewTextHandler(strings.NewReader("I want a refund\n"), out),
	))

	state, err := r.Run(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, state.Status)
	assert.Equal(t, "bye", state.CurrentNodeID)

	transcript := out.String()
	assert.Contains(t, transcript, "agent: Thanks for calling. What do you need?")
	assert.Contains(t, transcript, "(goal: Learn why the customer called)")
	assert.Contains(t, transcript, "> ")
	assert.Contains(t, transcript, "agent: Refund issued. Bye!\n[call ended: completed]")
	assert.Contains(t, transcript, "[system] call ended")
}

func TestRunner_EOFHangsUp(t *testing.T) {
	out := &bytes.Buffer{}
	r := runner.New(newEngine(t), runner.WithHandler(runner.NewTextHandler(strings.NewReader(""), out)))

	state, err := r.Run(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnded, state.Status)
	assert.Equal(t, domain.EndReasonHangup, state.Outcome)
	assert.Contains(t, out.String(), "[system] caller hung up")
}

func TestRunner_UnknownAgent(t *testing.T) {
	r := runner.New(newEngine(t), runner.WithHandler(runner.NewTextHandler(strings.NewReader(""), &bytes.Buffer{})))

	_, err := r.Run(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrFlowNotFound)
}

func TestRunner_JSONLines(t *testing.T) {
	out := &bytes.Buffer{}
	in := strings.NewReader(`{"text":"get me an agent"}` + "\n")
	r := runner.New(newEngine(t), runner.WithHandler(runner.NewJSONHandler(in, out)))

	state, err := r.Run(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTransferred, state.Status)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first, second domain.TurnResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "start", first.NodeID)
	assert.Equal(t, "human", second.NodeID)
	assert.Equal(t, domain.StatusTransferred, second.Status)
	assert.JSONEq(t, `{"system":"call transferred"}`, lines[2])
}
