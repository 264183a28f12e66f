package judge_test

import (
	"context"
	"testing"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/judge"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpr_Evaluate(t *testing.T) {
	turn := ports.TurnContext{
		CallID: "call-1",
		NodeID: "start",
		Transcript: []domain.Utterance{
			{Speaker: domain.SpeakerAgent, Text: "How can I help?"},
			{Speaker: domain.SpeakerCaller, Text: "I want a refund"},
		},
		Variables: map[string]any{
			"order_total": 150,
			"customer":    map[string]any{"tier": "gold"},
		},
	}

	tests := []struct {
		condition string
		want      bool
		wantErr   bool
	}{
		{`user_message contains "refund"`, true, false},
		{`order_total > 100`, true, false},
		{`order_total > 100 && customer.tier == "silver"`, false, false},
		{`missing == nil`, true, false},
		{`call_id == "call-1" && node_id == "start"`, true, false},
		{`the caller wants a refund`, false, true},
		{`order_total + 1`, false, true},
	}
	j := judge.NewExpr()
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			got, err := j.Evaluate(context.Background(), tt.condition, turn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_CachesPrograms(t *testing.T) {
	j := judge.NewExpr()
	ctx := context.Background()

	ok, err := j.Evaluate(ctx, `count >= 2`, ports.TurnContext{Variables: map[string]any{"count": 1}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = j.Evaluate(ctx, `count >= 2`, ports.TurnContext{Variables: map[string]any{"count": 3}})
	require.NoError(t, err)
	assert.True(t, ok, "a cached program runs against the new environment")
}

func TestStatic(t *testing.T) {
	j := judge.NewStatic(map[string]bool{"wants refund": true})
	ctx := context.Background()

	ok, _ := j.Evaluate(ctx, "wants refund", ports.TurnContext{})
	assert.True(t, ok)
	ok, _ = j.Evaluate(ctx, "wants sales", ports.TurnContext{})
	assert.False(t, ok)

	j.Set("wants sales", true)
	ok, _ = j.Evaluate(ctx, "wants sales", ports.TurnContext{})
	assert.True(t, ok)
	assert.Equal(t, []string{"wants refund", "wants sales", "wants sales"}, j.Asked())
}
