package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ringwire/callflow/pkg/domain"
)

// Repository implements ports.FlowRepository with one document per agent.
// Flows are written as YAML; "<agent>.json" documents are read as well.
type Repository struct {
	Dir string
}

// NewRepository creates a repository rooted at dir, ".callflow/flows" when empty.
func NewRepository(dir string) *Repository {
	if dir == "" {
		dir = filepath.Join(".callflow", "flows")
	}
	return &Repository{Dir: dir}
}

var flowExtensions = []string{".yaml", ".yml", ".json"}

// GetFlow reads the agent's flow document.
func (r *Repository) GetFlow(_ context.Context, agentID string) (*domain.Flow, error) {
	if err := validID(agentID); err != nil {
		return nil, err
	}
	for _, ext := range flowExtensions {
		data, err := os.ReadFile(filepath.Join(r.Dir, agentID+ext))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read flow for agent %s: %w", agentID, err)
		}

		var flow *domain.Flow
		if ext == ".json" {
			flow, err = domain.ParseFlowJSON(data)
		} else {
			flow, err = domain.ParseFlowYAML(data)
		}
		if err != nil {
			return nil, fmt.Errorf("decode flow for agent %s: %w", agentID, err)
		}
		return flow, nil
	}
	return nil, fmt.Errorf("%w: agent '%s'", domain.ErrFlowNotFound, agentID)
}

// ReplaceFlow writes the flow as "<agent>.yaml" and removes other spellings of the same document.
func (r *Repository) ReplaceFlow(_ context.Context, agentID string, flow *domain.Flow) error {
	if err := validID(agentID); err != nil {
		return err
	}
	data, err := yaml.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode flow for agent %s: %w", agentID, err)
	}
	if err := writeAtomic(filepath.Join(r.Dir, agentID+".yaml"), data); err != nil {
		return err
	}
	for _, ext := range flowExtensions[1:] {
		_ = os.Remove(filepath.Join(r.Dir, agentID+ext))
	}
	return nil
}

// ListAgents returns the agents with a flow document, sorted.
func (r *Repository) ListAgents(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list agents: %w", err)
	}

	seen := make(map[string]bool)
	agents := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ext := filepath.Ext(name)
		for _, known := range flowExtensions {
			id := strings.TrimSuffix(name, ext)
			if ext == known && !seen[id] {
				seen[id] = true
				agents = append(agents, id)
			}
		}
	}
	sort.Strings(agents)
	return agents, nil
}
