package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringwire/callflow/internal/presentation/graph"
	"github.com/ringwire/callflow/pkg/domain"
)

const menuFlow = `[
  {"id":"start","kind":"start","data":{"text":"hi","transitions":[
    {"id":"a","condition":"caller says \"billing\"","next_node":"menu"},
    {"id":"b","condition":"caller wants to talk about something that takes a very long sentence","next_node":"end"}]}},
  {"id":"menu","kind":"press_digit","label":"Main menu","data":{"text":"Press 1","digits":[{"digit":"1","next_node":"check-amount"}]}},
  {"id":"check-amount","kind":"logic_split","data":{
    "conditions":[{"variable":"amount","value_type":"number","operator":"greater_than","value":"100","next_node":"lookup"}],
    "default_next_node":"end"}},
  {"id":"lookup","kind":"function","data":{"webhook":{"url":"https://api.example.com/x"},"auto_transition_to":"end"}},
  {"id":"end","kind":"ending","data":{"dialogue_type":"static","text":"bye"}}
]`

func TestGenerateMermaid(t *testing.T) {
	flow, err := domain.ParseFlowJSON([]byte(menuFlow))
	require.NoError(t, err)

	got := graph.GenerateMermaid(flow, nil)

	for _, want := range []string{
		"graph TD\n",
		`start(("start<br/><i>start</i>"))`,
		`menu[/"Main menu<br/><i>press_digit</i>"/]`,
		`check_amount{"check-amount<br/><i>logic_split</i>"}`,
		`lookup[["lookup<br/><i>function</i>"]]`,
		`end(["end<br/><i>ending</i>"])`,
		`start -- "caller says 'billing'" --> menu`,
		`menu -- "press 1" --> check_amount`,
		`check_amount -- "amount > 100" --> lookup`,
		`check_amount -. "default" .-> end`,
		"lookup --> end",
	} {
		assert.Contains(t, got, want)
	}
	assert.Contains(t, got, `start -- "caller wants to talk about something th…" --> end`, "long conditions are truncated")
	assert.NotContains(t, got, "classDef")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	flow, err := domain.ParseFlowJSON([]byte(menuFlow))
	require.NoError(t, err)

	state := &domain.SessionState{History: []string{"start", "menu", "start", "menu"}, CurrentNodeID: "menu"}
	got := graph.GenerateMermaid(flow, graph.OverlayFor(state))

	assert.Equal(t, 1, strings.Count(got, "class start visited;"))
	assert.NotContains(t, got, "class menu visited;")
	assert.Contains(t, got, "class menu current;")
	assert.Nil(t, graph.OverlayFor(nil))
}

func TestConditionText(t *testing.T) {
	tests := []struct {
		cond domain.LogicSplitCondition
		want string
	}{
		{domain.LogicSplitCondition{Variable: "tier", Operator: domain.OpEquals, Value: "gold"}, "tier == gold"},
		{domain.LogicSplitCondition{Variable: "email", Operator: domain.OpNotExists}, "email not exists"},
		{domain.LogicSplitCondition{Variable: "name", Operator: domain.OpStartsWith, Value: "A"}, "name starts with A"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, graph.ConditionText(tt.cond))
	}
}

func TestDescribe(t *testing.T) {
	flow, err := domain.ParseFlowJSON([]byte(menuFlow))
	require.NoError(t, err)

	md := graph.Describe("billing", flow)
	assert.True(t, strings.HasPrefix(md, "# Flow `billing`\n"))
	assert.Contains(t, md, "| `check-amount` | logic_split | `lookup` (amount > 100), `end` (default) |")
	assert.Contains(t, md, "**Webhook:** `POST https://api.example.com/x` (timeout 10s) binds `webhook_response`")
	assert.Contains(t, md, "**says:** bye")
	assert.Contains(t, md, "**generated from:** hi")
}
