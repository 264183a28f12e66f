package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/domain"
)

// Graph is a validated, immutable flow. Sessions share it without locking.
type Graph struct {
	flow    *domain.Flow
	version string
	nodes   map[string]*domain.Node
	order   []string
	startID string
}

// NewGraph validates flow and freezes a private copy of it.
// Later edits to flow do not affect the graph.
func NewGraph(flow *domain.Flow) (*Graph, error) {
	if err := validator.Validate(flow); err != nil {
		return nil, err
	}

	doc, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("freeze flow: %w", err)
	}
	frozen, err := domain.ParseFlowJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("freeze flow: %w", err)
	}
	// Version the decoded form so a restored copy hashes the same.
	canonical, err := json.Marshal(frozen)
	if err != nil {
		return nil, fmt.Errorf("freeze flow: %w", err)
	}

	g := &Graph{
		flow:    frozen,
		version: FlowVersion(canonical),
		nodes:   make(map[string]*domain.Node, len(frozen.Nodes)),
		order:   make([]string, 0, len(frozen.Nodes)),
	}
	for i := range frozen.Nodes {
		n := &frozen.Nodes[i]
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
		if n.Kind == domain.KindStart {
			g.startID = n.ID
		}
	}
	return g, nil
}

// NodeByID returns the node or domain.ErrNodeNotFound.
// The returned node must not be modified.
func (g *Graph) NodeByID(id string) (*domain.Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", domain.ErrNodeNotFound, id)
	}
	return n, nil
}

// StartID returns the id of the single start node.
func (g *Graph) StartID() string {
	return g.startID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Flow returns the frozen flow document. It must not be modified.
func (g *Graph) Flow() *domain.Flow {
	return g.flow
}

// Version identifies the flow content. Equal documents share a version.
func (g *Graph) Version() string {
	return g.version
}

// FlowVersion digests an encoded flow document.
func FlowVersion(doc []byte) string {
	sum := sha256.Sum256(doc)
	return "sha256:" + hex.EncodeToString(sum[:])
}
