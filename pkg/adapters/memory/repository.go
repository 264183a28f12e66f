package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
)

// Repository implements ports.FlowRepository in memory.
type Repository struct {
	mu    sync.RWMutex
	flows map[string][]byte
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{flows: make(map[string][]byte)}
}

// NewRepositoryFromFlows seeds a repository, e.g. for tests and simulations.
func NewRepositoryFromFlows(flows map[string]*domain.Flow) (*Repository, error) {
	r := NewRepository()
	for agentID, flow := range flows {
		if err := r.ReplaceFlow(context.Background(), agentID, flow); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// GetFlow returns a private copy of the agent's flow.
func (r *Repository) GetFlow(_ context.Context, agentID string) (*domain.Flow, error) {
	r.mu.RLock()
	raw, ok := r.flows[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: agent '%s'", domain.ErrFlowNotFound, agentID)
	}
	return domain.ParseFlowJSON(raw)
}

// ReplaceFlow stores a copy of flow.
func (r *Repository) ReplaceFlow(_ context.Context, agentID string, flow *domain.Flow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode flow for agent %s: %w", agentID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[agentID] = raw
	return nil
}

// ListAgents returns the agents with a flow, sorted.
func (r *Repository) ListAgents(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]string, 0, len(r.flows))
	for id := range r.flows {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents, nil
}
