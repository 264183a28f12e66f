package dsl

import (
	"errors"
	"fmt"

	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
)

// Builder collects nodes in declaration order.
type Builder struct {
	order []string
	nodes map[string]*NodeBuilder
	errs  []error
}

// New creates an empty flow builder.
func New() *Builder {
	return &Builder{nodes: make(map[string]*NodeBuilder)}
}

func (b *Builder) add(id string, data domain.NodeData) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		if nb.node.Kind != data.Kind() {
			b.errs = append(b.errs, fmt.Errorf("node '%s' redeclared as %s, was %s", id, data.Kind(), nb.node.Kind))
		}
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Kind: data.Kind(), Data: data},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Start declares the start node.
func (b *Builder) Start(id string) *NodeBuilder {
	return b.add(id, &domain.StartData{})
}

// Conversation declares a dialogue node.
func (b *Builder) Conversation(id string) *NodeBuilder {
	return b.add(id, &domain.ConversationData{})
}

// CollectInput declares a node that asks the caller for information.
func (b *Builder) CollectInput(id string) *NodeBuilder {
	return b.add(id, &domain.CollectInputData{})
}

// Function declares a webhook node.
func (b *Builder) Function(id string, webhook domain.WebhookConfig) *NodeBuilder {
	return b.add(id, &domain.FunctionData{Webhook: webhook})
}

// LogicSplit declares a deterministic branch. Add branches with When and the fallback with Default.
func (b *Builder) LogicSplit(id string) *NodeBuilder {
	return b.add(id, &domain.LogicSplitData{})
}

// PressDigit declares a DTMF menu. Map keys with Digit.
func (b *Builder) PressDigit(id string) *NodeBuilder {
	return b.add(id, &domain.PressDigitData{})
}

// SendSMS declares a text message node.
func (b *Builder) SendSMS(id, to, message string) *NodeBuilder {
	return b.add(id, &domain.SendSMSData{To: to, Message: message})
}

// ExtractVariables declares a node that extracts variables without speaking.
func (b *Builder) ExtractVariables(id string) *NodeBuilder {
	return b.add(id, &domain.ExtractVariableData{})
}

// CallTransfer declares a transfer to a phone number.
func (b *Builder) CallTransfer(id, phoneNumber string) *NodeBuilder {
	return b.add(id, &domain.CallTransferData{PhoneNumber: phoneNumber})
}

// AgentTransfer declares a hand-off to another voice agent.
func (b *Builder) AgentTransfer(id, agentID string) *NodeBuilder {
	return b.add(id, &domain.AgentTransferData{AgentID: agentID})
}

// End declares an ending node.
func (b *Builder) End(id string) *NodeBuilder {
	return b.add(id, &domain.EndingData{})
}

// Build returns the validated flow. Builder misuse and validation violations are joined into one error.
func (b *Builder) Build() (*domain.Flow, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	flow := &domain.Flow{Nodes: make([]domain.Node, 0, len(b.order))}
	for _, id := range b.order {
		flow.Nodes = append(flow.Nodes, b.nodes[id].node)
	}
	if err := validator.Validate(flow); err != nil {
		return nil, err
	}
	return flow, nil
}

// Repository builds the flow and stores it for agentID in a memory repository.
func (b *Builder) Repository(agentID string) (*memory.Repository, error) {
	flow, err := b.Build()
	if err != nil {
		return nil, err
	}
	repo, err := memory.NewRepositoryFromFlows(map[string]*domain.Flow{agentID: flow})
	if err != nil {
		return nil, fmt.Errorf("build memory repository: %w", err)
	}
	return repo, nil
}
