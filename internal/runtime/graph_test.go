package runtime_test

import (
	"testing"

	"github.com/ringwire/callflow/internal/runtime"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph(t *testing.T) {
	flow, err := domain.ParseFlowJSON([]byte(refundFlow))
	require.NoError(t, err)

	g, err := runtime.NewGraph(flow)
	require.NoError(t, err)
	assert.Equal(t, "start", g.StartID())
	assert.Equal(t, 3, g.Len())

	flow.Nodes[0].Label = "edited"
	node, err := g.NodeByID("start")
	require.NoError(t, err)
	assert.Empty(t, node.Label, "the graph keeps its own copy")

	_, err = g.NodeByID("nope")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestNewGraph_RejectsInvalidFlow(t *testing.T) {
	flow, err := domain.ParseFlowJSON([]byte(`[
	  {"id":"start","kind":"start","data":{"auto_transition_to":"missing"}}
	]`))
	require.NoError(t, err)

	_, err = runtime.NewGraph(flow)
	assert.ErrorIs(t, err, domain.ErrInvalidFlow)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(domain.ViolationDanglingTarget))
}

func TestGraph_VersionFollowsContent(t *testing.T) {
	a := mustGraph(t, refundFlow)
	b := mustGraph(t, refundFlow)
	assert.Equal(t, a.Version(), b.Version())
	assert.Contains(t, a.Version(), "sha256:")

	again, err := runtime.NewGraph(a.Flow())
	require.NoError(t, err)
	assert.Equal(t, a.Version(), again.Version(), "a pinned copy rebuilds to the same version")

	flow, err := domain.ParseFlowJSON([]byte(refundFlow))
	require.NoError(t, err)
	flow.Nodes[0].Label = "Greeting"
	edited, err := runtime.NewGraph(flow)
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), edited.Version())
}
