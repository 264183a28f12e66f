package validator

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
)

// Validate checks a flow for authoring defects and returns every violation found
// as a *domain.ValidationError, or nil when the flow can be executed.
func Validate(flow *domain.Flow) error {
	if flow == nil {
		return &domain.ValidationError{Violations: []domain.Violation{
			{Kind: domain.ViolationMissingStart, Detail: "flow is empty"},
		}}
	}

	c := &checker{ids: make(map[string]int, len(flow.Nodes))}
	c.indexNodes(flow)
	for i := range flow.Nodes {
		c.checkNode(&flow.Nodes[i])
	}

	if len(c.violations) > 0 {
		return &domain.ValidationError{Violations: c.violations}
	}
	return nil
}

// CheckWebhook validates a standalone webhook configuration, e.g. before a test request.
func CheckWebhook(w domain.WebhookConfig) error {
	c := &checker{}
	c.checkWebhook("", w)
	if len(c.violations) > 0 {
		return &domain.ValidationError{Violations: c.violations}
	}
	return nil
}

type checker struct {
	ids        map[string]int
	violations []domain.Violation
}

func (c *checker) add(kind domain.ViolationKind, nodeID, format string, args ...any) {
	c.violations = append(c.violations, domain.Violation{
		Kind:   kind,
		NodeID: nodeID,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (c *checker) indexNodes(flow *domain.Flow) {
	starts := 0
	for i, n := range flow.Nodes {
		if n.ID == "" {
			c.add(domain.ViolationEmptyNodeID, "", "node at position %d has no id", i)
			continue
		}
		if _, seen := c.ids[n.ID]; seen {
			c.add(domain.ViolationDuplicateNodeID, n.ID, "node id is used more than once")
			continue
		}
		c.ids[n.ID] = i
		if n.Kind == domain.KindStart {
			starts++
		}
	}

	switch {
	case starts == 0:
		c.add(domain.ViolationMissingStart, "", "flow has no start node")
	case starts > 1:
		c.add(domain.ViolationDuplicateStart, "", "flow has %d start nodes, expected exactly one", starts)
	}
}

func (c *checker) checkNode(n *domain.Node) {
	if !n.Kind.Valid() {
		c.add(domain.ViolationUnknownKind, n.ID, "unsupported kind '%s'", n.Kind)
		return
	}
	if n.Data == nil || n.Data.Kind() != n.Kind {
		c.add(domain.ViolationUnknownKind, n.ID, "data does not match kind '%s'", n.Kind)
		return
	}

	if n.Orphaned != nil && domain.HasTransitions(n.Orphaned) {
		if n.Kind.Terminal() {
			c.add(domain.ViolationTerminalHasTransitions, n.ID, "%s nodes cannot have outgoing transitions", n.Kind)
		} else {
			c.add(domain.ViolationTerminalHasTransitions, n.ID, "%s nodes route with their own fields, not transitions", n.Kind)
		}
	}

	for _, target := range n.Targets() {
		c.checkTarget(n.ID, target)
	}

	if cond, ok := n.Strategy().(domain.Conditional); ok {
		for i, t := range cond.Transitions {
			if t.Condition == "" {
				c.add(domain.ViolationInvalidCondition, n.ID, "transition %d has an empty condition", i)
			}
		}
	}

	c.checkVariables(n)

	switch d := n.Data.(type) {
	case *domain.FunctionData:
		c.checkWebhook(n.ID, d.Webhook)
	case *domain.LogicSplitData:
		c.checkLogicSplit(n.ID, d)
	case *domain.PressDigitData:
		seen := make(map[string]bool, len(d.Digits))
		for _, m := range d.Digits {
			if m.Digit == "" {
				c.add(domain.ViolationInvalidCondition, n.ID, "digit mapping to '%s' has no digit", m.NextNode)
			} else if seen[m.Digit] {
				c.add(domain.ViolationInvalidCondition, n.ID, "digit '%s' is mapped more than once", m.Digit)
			}
			seen[m.Digit] = true
		}
	case *domain.CallTransferData:
		if d.PhoneNumber == "" {
			c.add(domain.ViolationMissingField, n.ID, "call transfer has no phone number")
		}
	case *domain.AgentTransferData:
		if d.AgentID == "" {
			c.add(domain.ViolationMissingField, n.ID, "agent transfer has no agent id")
		}
	}
}

func (c *checker) checkTarget(nodeID, target string) {
	if target == "" {
		c.add(domain.ViolationDanglingTarget, nodeID, "transition has an empty target")
		return
	}
	if _, ok := c.ids[target]; !ok {
		c.add(domain.ViolationDanglingTarget, nodeID, "target '%s' does not exist", target)
	}
}

func (c *checker) checkVariables(n *domain.Node) {
	names := make(map[string]bool)
	for _, spec := range n.ExtractVariables() {
		if spec.Name == "" {
			c.add(domain.ViolationEmptyVariableName, n.ID, "extract variable has no name")
			continue
		}
		if names[spec.Name] {
			c.add(domain.ViolationDuplicateVariableName, n.ID, "variable '%s' is declared more than once", spec.Name)
		}
		names[spec.Name] = true
	}
}

func (c *checker) checkWebhook(nodeID string, w domain.WebhookConfig) {
	if w.URL == "" {
		c.add(domain.ViolationInvalidWebhook, nodeID, "webhook url is empty")
	} else if u, err := url.Parse(w.URL); !strings.Contains(w.URL, "{{") && (err != nil || u.Scheme == "") {
		c.add(domain.ViolationInvalidWebhook, nodeID, "webhook url '%s' is not absolute", w.URL)
	}
	if !domain.ValidMethod(w.HTTPMethod()) {
		c.add(domain.ViolationInvalidWebhook, nodeID, "method '%s' is not one of GET, POST, PUT, PATCH", w.Method)
	}
	if w.TimeoutSeconds != 0 && (w.TimeoutSeconds < domain.MinWebhookTimeoutSeconds || w.TimeoutSeconds > domain.MaxWebhookTimeoutSeconds) {
		c.add(domain.ViolationInvalidWebhook, nodeID, "timeout %ds is outside %d-%d", w.TimeoutSeconds,
			domain.MinWebhookTimeoutSeconds, domain.MaxWebhookTimeoutSeconds)
	}
}

func (c *checker) checkLogicSplit(nodeID string, d *domain.LogicSplitData) {
	if d.DefaultNextNode == "" {
		c.add(domain.ViolationMissingDefaultPath, nodeID, "logic split has no default_next_node")
	}
	for i, cond := range d.Conditions {
		if cond.Variable == "" {
			c.add(domain.ViolationInvalidCondition, nodeID, "condition %d has no variable", i)
		}
		if !cond.ValueType.Supports(cond.Operator) {
			c.add(domain.ViolationInvalidCondition, nodeID, "condition %d: operator '%s' is not defined for value type '%s'",
				i, cond.Operator, cond.ValueType)
		}
	}
}
