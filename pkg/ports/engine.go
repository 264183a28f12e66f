package ports

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// FlowService manages flow documents. SaveFlow validates before storing.
type FlowService interface {
	GetFlow(ctx context.Context, agentID string) (*domain.Flow, error)
	SaveFlow(ctx context.Context, agentID string, flow *domain.Flow) error
	ValidateFlow(flow *domain.Flow) error
	ListAgents(ctx context.Context) ([]string, error)
}

// CallService drives calls turn by turn.
type CallService interface {
	StartCall(ctx context.Context, agentID string) (*domain.TurnResult, error)
	Respond(ctx context.Context, callID string, input domain.Input) (*domain.TurnResult, error)
	GetCall(ctx context.Context, callID string) (*domain.SessionState, error)
	EndCall(ctx context.Context, callID string) error
}
