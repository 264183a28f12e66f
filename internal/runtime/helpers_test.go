package runtime_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ringwire/callflow/internal/runtime"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/stretchr/testify/require"
)

func mustGraph(t *testing.T, doc string) *runtime.Graph {
	t.Helper()
	flow, err := domain.ParseFlowJSON([]byte(doc))
	require.NoError(t, err)
	g, err := runtime.NewGraph(flow)
	require.NoError(t, err)
	return g
}

// keywordJudge satisfies a condition when the last caller utterance contains it, ignoring case.
type keywordJudge struct {
	calls atomic.Int32
}

func (j *keywordJudge) Evaluate(_ context.Context, condition string, turn ports.TurnContext) (bool, error) {
	j.calls.Add(1)
	said := strings.ToLower(turn.LastCallerUtterance())
	return strings.Contains(said, strings.ToLower(condition)), nil
}

// pairExtractor binds "name=value" tokens found in the last caller utterance.
var pairExtractor = ports.ExtractorFunc(func(_ context.Context, spec domain.ExtractVariableSpec, turn ports.TurnContext) (any, bool, error) {
	for _, field := range strings.Fields(turn.LastCallerUtterance()) {
		name, value, ok := strings.Cut(field, "=")
		if ok && name == spec.Name {
			return value, true, nil
		}
	}
	return nil, false, nil
})

func actionTypes(res *domain.TurnResult) []string {
	out := make([]string, 0, len(res.Actions))
	for _, a := range res.Actions {
		out = append(out, a.Type)
	}
	return out
}

func findAction(t *testing.T, res *domain.TurnResult, actionType string) domain.ActionRequest {
	t.Helper()
	for _, a := range res.Actions {
		if a.Type == actionType {
			return a
		}
	}
	t.Fatalf("no %s action in %v", actionType, actionTypes(res))
	return domain.ActionRequest{}
}
