package extract_test

import (
	"context"
	"testing"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/extract"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern_Extract(t *testing.T) {
	turn := ports.TurnContext{Transcript: []domain.Utterance{
		{Speaker: domain.SpeakerCaller, Text: "my order is AB-1234"},
		{Speaker: domain.SpeakerAgent, Text: "and your zip code, like 90210?"},
		{Speaker: domain.SpeakerCaller, Text: "zip 10001, actually order CD-5678"},
	}}
	p := extract.NewPattern(map[string]string{"zip": `\b(\d{5})\b`})

	tests := []struct {
		name  string
		spec  domain.ExtractVariableSpec
		want  any
		found bool
	}{
		{"hint with group, latest wins", domain.ExtractVariableSpec{Name: "order_id", ExtractionHint: `([A-Z]{2}-\d{4})`}, "CD-5678", true},
		{"override ignores agent lines", domain.ExtractVariableSpec{Name: "zip", ExtractionHint: "ignored"}, "10001", true},
		{"whole match without groups", domain.ExtractVariableSpec{Name: "word", ExtractionHint: `actually`}, "actually", true},
		{"no hint", domain.ExtractVariableSpec{Name: "email"}, nil, false},
		{"no match", domain.ExtractVariableSpec{Name: "phone", ExtractionHint: `\+\d+`}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := p.Extract(context.Background(), tt.spec, turn)
			require.NoError(t, err)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, _, err := p.Extract(context.Background(), domain.ExtractVariableSpec{Name: "bad", ExtractionHint: `(`}, turn)
	assert.Error(t, err)
}

func TestStatic_Extract(t *testing.T) {
	s := extract.NewStatic(map[string]any{"name": "Ada"})
	v, ok, err := s.Extract(context.Background(), domain.ExtractVariableSpec{Name: "name"}, ports.TurnContext{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", v)

	_, ok, _ = s.Extract(context.Background(), domain.ExtractVariableSpec{Name: "city"}, ports.TurnContext{})
	assert.False(t, ok)

	s.Set("city", "Paris")
	v, ok, _ = s.Extract(context.Background(), domain.ExtractVariableSpec{Name: "city"}, ports.TurnContext{})
	assert.True(t, ok)
	assert.Equal(t, "Paris", v)
}
