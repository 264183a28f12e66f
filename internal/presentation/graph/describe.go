package graph

import (
	"fmt"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
)

// Describe renders the flow as a markdown document: a node table followed by one section per node.
func Describe(agentID string, flow *domain.Flow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Flow `%s`\n\n", agentID)
	fmt.Fprintf(&sb, "%d nodes.\n\n", len(flow.Nodes))

	sb.WriteString("| Node | Kind | Routes to |\n|---|---|---|\n")
	for i := range flow.Nodes {
		n := &flow.Nodes[i]
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", n.ID, n.Kind, routes(n))
	}

	for i := range flow.Nodes {
		describeNode(&sb, &flow.Nodes[i])
	}
	return sb.String()
}

func routes(n *domain.Node) string {
	es := edges(n)
	if len(es) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(es))
	for _, e := range es {
		if e.label == "" {
			parts = append(parts, "`"+e.to+"`")
			continue
		}
		parts = append(parts, fmt.Sprintf("`%s` (%s)", e.to, strings.ReplaceAll(e.label, "|", "\\|")))
	}
	return strings.Join(parts, ", ")
}

func describeNode(sb *strings.Builder, n *domain.Node) {
	fmt.Fprintf(sb, "\n## %s\n\n", n.ID)
	if n.Label != "" {
		fmt.Fprintf(sb, "_%s_\n\n", n.Label)
	}

	if c, ok := content(n); ok && c.Text != "" {
		mode := "generated from"
		if c.Verbatim() {
			mode = "says"
		}
		fmt.Fprintf(sb, "**%s:** %s\n\n", mode, c.Text)
	}
	if goal := n.Goal(); goal != "" {
		fmt.Fprintf(sb, "**Goal:** %s\n\n", goal)
	}

	switch d := n.Data.(type) {
	case *domain.FunctionData:
		w := d.Webhook
		fmt.Fprintf(sb, "**Webhook:** `%s %s` (timeout %ds", w.HTTPMethod(), w.URL, w.Timeout())
		if !w.Waits() {
			sb.WriteString(", async")
		}
		fmt.Fprintf(sb, ") binds `%s`\n\n", w.ResponseVar())
	case *domain.CallTransferData:
		fmt.Fprintf(sb, "**Transfer to:** %s\n\n", d.PhoneNumber)
	case *domain.AgentTransferData:
		fmt.Fprintf(sb, "**Hand off to agent:** `%s`\n\n", d.AgentID)
	case *domain.SendSMSData:
		fmt.Fprintf(sb, "**SMS:** %s\n\n", d.Message)
	}

	if specs := n.ExtractVariables(); len(specs) > 0 {
		sb.WriteString("**Variables:**\n\n")
		for _, s := range specs {
			flag := "optional"
			if s.IsRequired() {
				flag = "required"
			}
			fmt.Fprintf(sb, "- `%s` (%s)", s.Name, flag)
			if s.Description != "" {
				fmt.Fprintf(sb, ": %s", s.Description)
			}
			sb.WriteString("\n")
		}
	}
}

func content(n *domain.Node) (domain.Content, bool) {
	switch d := n.Data.(type) {
	case *domain.StartData:
		return d.Content, true
	case *domain.ConversationData:
		return d.Content, true
	case *domain.CollectInputData:
		return d.Content, true
	case *domain.PressDigitData:
		return d.Content, true
	case *domain.CallTransferData:
		return d.Content, true
	case *domain.AgentTransferData:
		return d.Content, true
	case *domain.EndingData:
		return d.Content, true
	}
	return domain.Content{}, false
}
