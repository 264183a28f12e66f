package dsl

import (
	"fmt"

	"github.com/ringwire/callflow/pkg/domain"
)

// NodeBuilder configures one node. Methods that do not apply to the node's kind are recorded
// as errors and reported by Builder.Build.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

func (n *NodeBuilder) fail(method string) *NodeBuilder {
	n.builder.errs = append(n.builder.errs, fmt.Errorf("node '%s': %s does not apply to %s nodes", n.node.ID, method, n.node.Kind))
	return n
}

// Label sets the display label.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Label = label
	return n
}

// Say sets text that is spoken verbatim.
func (n *NodeBuilder) Say(text string) *NodeBuilder {
	return n.setContent("Say", domain.Content{DialogueType: domain.DialogueStatic, Text: text})
}

// Prompt sets an instruction the dialogue collaborator generates speech from.
func (n *NodeBuilder) Prompt(text string) *NodeBuilder {
	return n.setContent("Prompt", domain.Content{DialogueType: domain.DialoguePrompt, Text: text})
}

func (n *NodeBuilder) setContent(method string, c domain.Content) *NodeBuilder {
	switch d := n.node.Data.(type) {
	case *domain.StartData:
		d.Content = c
	case *domain.ConversationData:
		d.Content = c
	case *domain.CollectInputData:
		d.Content = c
	case *domain.PressDigitData:
		d.Content = c
	case *domain.CallTransferData:
		d.Content = c
	case *domain.AgentTransferData:
		d.Content = c
	case *domain.EndingData:
		d.Content = c
	default:
		return n.fail(method)
	}
	return n
}

// Goal sets the guidance used when the caller's reply does not route anywhere.
func (n *NodeBuilder) Goal(goal string) *NodeBuilder {
	switch d := n.node.Data.(type) {
	case *domain.StartData:
		d.Goal = goal
	case *domain.ConversationData:
		d.Goal = goal
	case *domain.CollectInputData:
		d.Goal = goal
	case *domain.PressDigitData:
		d.Goal = goal
	case *domain.FunctionData:
		d.Webhook.Goal = goal
	default:
		return n.fail("Goal")
	}
	return n
}

// Extract declares variables to extract from the caller's replies.
func (n *NodeBuilder) Extract(specs ...domain.ExtractVariableSpec) *NodeBuilder {
	switch d := n.node.Data.(type) {
	case *domain.StartData:
		d.ExtractVariables = append(d.ExtractVariables, specs...)
	case *domain.ConversationData:
		d.ExtractVariables = append(d.ExtractVariables, specs...)
	case *domain.CollectInputData:
		d.ExtractVariables = append(d.ExtractVariables, specs...)
	case *domain.FunctionData:
		d.ExtractVariables = append(d.ExtractVariables, specs...)
	case *domain.ExtractVariableData:
		d.ExtractVariables = append(d.ExtractVariables, specs...)
	default:
		return n.fail("Extract")
	}
	return n
}

func (n *NodeBuilder) routing(method string) (*domain.Routing, bool) {
	switch d := n.node.Data.(type) {
	case *domain.StartData:
		return &d.Routing, true
	case *domain.ConversationData:
		return &d.Routing, true
	case *domain.CollectInputData:
		return &d.Routing, true
	case *domain.FunctionData:
		return &d.Routing, true
	case *domain.SendSMSData:
		return &d.Routing, true
	case *domain.ExtractVariableData:
		return &d.Routing, true
	}
	n.fail(method)
	return nil, false
}

// Go moves to target as soon as the node has done its work.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	if r, ok := n.routing("Go"); ok {
		r.SetStrategy(domain.Fixed{Target: target})
	}
	return n
}

// AfterResponse moves to target after any caller reply.
func (n *NodeBuilder) AfterResponse(target string) *NodeBuilder {
	if r, ok := n.routing("AfterResponse"); ok {
		r.SetStrategy(domain.AfterAnyResponse{Target: target})
	}
	return n
}

// Branch adds a judged transition. The condition is only considered once checkVariables are bound.
func (n *NodeBuilder) Branch(condition, target string, checkVariables ...string) *NodeBuilder {
	r, ok := n.routing("Branch")
	if !ok {
		return n
	}
	cond, _ := r.Strategy.(domain.Conditional)
	cond.Transitions = append(cond.Transitions, domain.Transition{
		ID:             fmt.Sprintf("%s-%d", n.node.ID, len(cond.Transitions)+1),
		Condition:      condition,
		NextNode:       target,
		CheckVariables: checkVariables,
	})
	r.SetStrategy(cond)
	return n
}

// When adds a logic split branch.
func (n *NodeBuilder) When(variable string, valueType domain.ValueType, op domain.Operator, value, target string) *NodeBuilder {
	d, ok := n.node.Data.(*domain.LogicSplitData)
	if !ok {
		return n.fail("When")
	}
	d.Conditions = append(d.Conditions, domain.LogicSplitCondition{
		Variable:  variable,
		ValueType: valueType,
		Operator:  op,
		Value:     value,
		NextNode:  target,
	})
	return n
}

// Default sets the logic split fallback.
func (n *NodeBuilder) Default(target string) *NodeBuilder {
	d, ok := n.node.Data.(*domain.LogicSplitData)
	if !ok {
		return n.fail("Default")
	}
	d.DefaultNextNode = target
	return n
}

// Digit maps a DTMF key to target.
func (n *NodeBuilder) Digit(digit, target string) *NodeBuilder {
	d, ok := n.node.Data.(*domain.PressDigitData)
	if !ok {
		return n.fail("Digit")
	}
	d.Digits = append(d.Digits, domain.DigitMapping{Digit: digit, NextNode: target})
	return n
}

// Node returns the node as built so far. Its Data is shared with the builder.
func (n *NodeBuilder) Node() domain.Node {
	return n.node
}

// Required declares a variable that gates progress.
func Required(name, description string) domain.ExtractVariableSpec {
	return domain.ExtractVariableSpec{Name: name, Description: description, Required: true}
}

// Optional declares a variable that is captured when the caller offers it.
func Optional(name, description string) domain.ExtractVariableSpec {
	return domain.ExtractVariableSpec{Name: name, Description: description}
}
