package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	backend "github.com/redis/go-redis/v9"

	"github.com/ringwire/callflow/pkg/domain"
)

// Repository implements ports.FlowRepository with one hash field per agent.
type Repository struct {
	client *backend.Client
	prefix string
}

// NewRepository creates a flow repository. An empty prefix uses DefaultPrefix.
func NewRepository(client *backend.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Repository{client: client, prefix: prefix}
}

func (r *Repository) key() string {
	return r.prefix + "flows"
}

// GetFlow loads and decodes the agent's flow.
func (r *Repository) GetFlow(ctx context.Context, agentID string) (*domain.Flow, error) {
	raw, err := r.client.HGet(ctx, r.key(), agentID).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: agent '%s'", domain.ErrFlowNotFound, agentID)
		}
		return nil, fmt.Errorf("load flow for agent %s: %w", agentID, err)
	}
	flow, err := domain.ParseFlowJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode flow for agent %s: %w", agentID, err)
	}
	return flow, nil
}

// ReplaceFlow stores the flow as JSON.
func (r *Repository) ReplaceFlow(ctx context.Context, agentID string, flow *domain.Flow) error {
	raw, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode flow for agent %s: %w", agentID, err)
	}
	if err := r.client.HSet(ctx, r.key(), agentID, raw).Err(); err != nil {
		return fmt.Errorf("save flow for agent %s: %w", agentID, err)
	}
	return nil
}

// ListAgents returns the agents with a stored flow, sorted.
func (r *Repository) ListAgents(ctx context.Context) ([]string, error) {
	agents, err := r.client.HKeys(ctx, r.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	sort.Strings(agents)
	return agents, nil
}
