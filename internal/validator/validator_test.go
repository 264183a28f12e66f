package validator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, doc string) *domain.Flow {
	t.Helper()
	flow, err := domain.ParseFlow([]byte(doc))
	require.NoError(t, err)
	return flow
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantKinds []domain.ViolationKind
	}{
		{
			name: "valid flow",
			doc: `[
				{"id":"start","kind":"start","data":{"text":"hi","transitions":[{"condition":"wants sales","next_node":"menu"}]}},
				{"id":"menu","kind":"press_digit","data":{"text":"press 1","digits":[{"digit":"1","next_node":"split"}]}},
				{"id":"split","kind":"logic_split","data":{"conditions":[{"variable":"vip","value_type":"existence","operator":"exists","next_node":"human"}],"default_next_node":"bye"}},
				{"id":"human","kind":"call_transfer","data":{"phone_number":"+15550100"}},
				{"id":"bye","kind":"ending"}
			]`,
		},
		{
			name:      "missing start",
			doc:       `[{"id":"bye","kind":"ending"}]`,
			wantKinds: []domain.ViolationKind{domain.ViolationMissingStart},
		},
		{
			name: "duplicate start",
			doc: `[
				{"id":"a","kind":"start","data":{"auto_transition_to":"bye"}},
				{"id":"b","kind":"start","data":{"auto_transition_to":"bye"}},
				{"id":"bye","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationDuplicateStart},
		},
		{
			name: "dangling transition target",
			doc: `[
				{"id":"start","kind":"start","data":{"transitions":[{"condition":"x","next_node":"ghost"}]}}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationDanglingTarget},
		},
		{
			name: "dangling digit and logic split targets",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"menu"}},
				{"id":"menu","kind":"press_digit","data":{"digits":[{"digit":"1","next_node":"ghost"}]}},
				{"id":"split","kind":"logic_split","data":{"conditions":[],"default_next_node":"nowhere"}}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationDanglingTarget, domain.ViolationDanglingTarget},
		},
		{
			name: "duplicate node id",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"x"}},
				{"id":"x","kind":"ending"},
				{"id":"x","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationDuplicateNodeID},
		},
		{
			name: "terminal with transitions",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"bye"}},
				{"id":"bye","kind":"ending","data":{"transitions":[{"condition":"x","next_node":"start"}]}}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationTerminalHasTransitions},
		},
		{
			name: "duplicate and empty variable names",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"ask"}},
				{"id":"ask","kind":"collect_input","data":{"auto_transition_to":"bye","extract_variables":[
					{"name":"zip"},{"name":"zip"},{"name":""}
				]}},
				{"id":"bye","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationDuplicateVariableName, domain.ViolationEmptyVariableName},
		},
		{
			name: "logic split without default",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"split"}},
				{"id":"split","kind":"logic_split","data":{"conditions":[{"variable":"a","value_type":"string","operator":"equals","value":"x","next_node":"bye"}]}},
				{"id":"bye","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationMissingDefaultPath},
		},
		{
			name: "operator not defined for value type",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"split"}},
				{"id":"split","kind":"logic_split","data":{"conditions":[{"variable":"a","value_type":"number","operator":"contains","value":"1","next_node":"bye"}],"default_next_node":"bye"}},
				{"id":"bye","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{domain.ViolationInvalidCondition},
		},
		{
			name: "invalid webhook",
			doc: `[
				{"id":"start","kind":"start","data":{"auto_transition_to":"fn"}},
				{"id":"fn","kind":"function","data":{"webhook":{"url":"","method":"DELETE","timeout_seconds":60},"auto_transition_to":"bye"}},
				{"id":"bye","kind":"ending"}
			]`,
			wantKinds: []domain.ViolationKind{
				domain.ViolationInvalidWebhook,
				domain.ViolationInvalidWebhook,
				domain.ViolationInvalidWebhook,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(parse(t, tt.doc))
			if len(tt.wantKinds) == 0 {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidFlow))

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			var got []domain.ViolationKind
			for _, v := range verr.Violations {
				got = append(got, v.Kind)
			}
			assert.ElementsMatch(t, tt.wantKinds, got)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	err := Validate(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidFlow)
}

func TestValidate_TemplatedURL(t *testing.T) {
	flow := parse(t, `[
		{"id":"start","kind":"start","data":{"auto_transition_to":"fn"}},
		{"id":"fn","kind":"function","data":{"webhook":{"url":"{{api_base}}/orders"},"auto_transition_to":"bye"}},
		{"id":"bye","kind":"ending"}
	]`)
	assert.NoError(t, Validate(flow))
}

func TestValidate_RoundTripIsIdempotent(t *testing.T) {
	doc := `[
		{"id":"start","kind":"start","data":{"dialogue_type":"static","text":"Hello","transitions":[
			{"id":"t1","condition":"caller wants to pay","next_node":"amount","check_variables":["account"]}
		],"extract_variables":[{"name":"account","mandatory":true}]}},
		{"id":"amount","kind":"collect_input","data":{"auto_transition_after_response":"pay","extract_variables":[{"name":"amount","required":true,"reprompt_type":"prompt","reprompt_text":"ask for the amount"}]}},
		{"id":"pay","kind":"function","data":{"webhook":{"url":"https://pay.example.com","body_template":"{\"type\":\"object\",\"properties\":{\"account\":{},\"amount\":{}}}"},"auto_transition_to":"check"}},
		{"id":"check","kind":"logic_split","data":{"conditions":[{"variable":"webhook_response.status","value_type":"string","operator":"equals","value":"ok","next_node":"sms"}],"default_next_node":"bye"}},
		{"id":"sms","kind":"send_sms","data":{"message":"Paid {{amount}}","auto_transition_to":"bye"}},
		{"id":"bye","kind":"ending","data":{"text":"Bye"}}
	]`
	flow := parse(t, doc)
	require.NoError(t, Validate(flow))

	encoded, err := json.Marshal(flow)
	require.NoError(t, err)
	again := parse(t, string(encoded))
	require.NoError(t, Validate(again))

	encodedAgain, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(encoded), string(encodedAgain))
}

func TestUnreachable(t *testing.T) {
	flow := parse(t, `[
		{"id":"start","kind":"start","data":{"auto_transition_to":"bye"}},
		{"id":"draft","kind":"conversation","data":{"auto_transition_to":"bye"}},
		{"id":"bye","kind":"ending"}
	]`)
	assert.Equal(t, []string{"draft"}, Unreachable(flow))
}

func TestCheckWebhook(t *testing.T) {
	assert.NoError(t, CheckWebhook(domain.WebhookConfig{URL: "https://hooks.example.com/orders", Method: "POST"}))
	assert.NoError(t, CheckWebhook(domain.WebhookConfig{URL: "{{base_url}}/orders"}))

	err := CheckWebhook(domain.WebhookConfig{URL: "orders", Method: "DELETE", TimeoutSeconds: 999})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Violations, 3)
	assert.True(t, verr.Has(domain.ViolationInvalidWebhook))
}
