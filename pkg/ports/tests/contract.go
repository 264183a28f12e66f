// Package tests holds reusable contract suites for port implementations.
package tests

import (
	"context"
	"testing"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SampleFlow returns a small valid flow used by the contract suite.
func SampleFlow(greeting string) *domain.Flow {
	return &domain.Flow{Nodes: []domain.Node{
		{
			ID:   "start",
			Kind: domain.KindStart,
			Data: &domain.StartData{
				Content: domain.Content{DialogueType: domain.DialogueStatic, Text: greeting},
				Routing: domain.Routing{Strategy: domain.Conditional{Transitions: []domain.Transition{
					{ID: "t-bye", Condition: "caller says goodbye", NextNode: "end"},
				}}},
			},
		},
		{
			ID:   "end",
			Kind: domain.KindEnding,
			Data: &domain.EndingData{Content: domain.Content{DialogueType: domain.DialogueStatic, Text: "Bye"}},
		},
	}}
}

// FlowRepositoryContractTest verifies that an adapter complies with ports.FlowRepository.
// The repository must start empty.
func FlowRepositoryContractTest(t *testing.T, repo ports.FlowRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetFlow_NotFound", func(t *testing.T) {
		_, err := repo.GetFlow(ctx, "missing-agent")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("ReplaceFlow_And_GetFlow", func(t *testing.T) {
		require.NoError(t, repo.ReplaceFlow(ctx, "agent-a", SampleFlow("Hello")))

		flow, err := repo.GetFlow(ctx, "agent-a")
		require.NoError(t, err)
		require.Len(t, flow.Nodes, 2)
		assert.Equal(t, "start", flow.Nodes[0].ID)
		start, ok := flow.Nodes[0].Data.(*domain.StartData)
		require.True(t, ok)
		assert.Equal(t, "Hello", start.Text)
		assert.Equal(t, []string{"end"}, flow.Nodes[0].Strategy().Targets())
	})

	t.Run("ReplaceFlow_Overwrites", func(t *testing.T) {
		require.NoError(t, repo.ReplaceFlow(ctx, "agent-a", SampleFlow("Welcome back")))

		flow, err := repo.GetFlow(ctx, "agent-a")
		require.NoError(t, err)
		assert.Equal(t, "Welcome back", flow.Nodes[0].Data.(*domain.StartData).Text)
	})

	t.Run("ListAgents", func(t *testing.T) {
		require.NoError(t, repo.ReplaceFlow(ctx, "agent-b", SampleFlow("Hi")))

		agents, err := repo.ListAgents(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"agent-a", "agent-b"}, agents)
	})
}
