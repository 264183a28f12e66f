package ports

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// FlowRepository stores one flow document per agent.
type FlowRepository interface {
	// GetFlow returns domain.ErrFlowNotFound when the agent has no flow.
	GetFlow(ctx context.Context, agentID string) (*domain.Flow, error)

	// ReplaceFlow stores the flow, overwriting any previous one.
	// Callers validate before saving; the repository does not.
	ReplaceFlow(ctx context.Context, agentID string, flow *domain.Flow) error

	// ListAgents returns the ids of every agent with a stored flow, sorted.
	ListAgents(ctx context.Context) ([]string, error)
}
