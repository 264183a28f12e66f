package graph

import (
	"fmt"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
)

const maxLabel = 40

// Overlay marks the progress of one call on the graph.
type Overlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFor builds the overlay of a call snapshot.
func OverlayFor(state *domain.SessionState) *Overlay {
	if state == nil {
		return nil
	}
	return &Overlay{VisitedNodes: state.History, CurrentNode: state.CurrentNodeID}
}

// GenerateMermaid produces a Mermaid flowchart of the flow.
// Node shapes follow the kind:
//   - start: ((circle))
//   - function: [[subroutine]]
//   - logic_split: {diamond}
//   - collect_input, press_digit: [/parallelogram/]
//   - ending and transfers: ([stadium])
//   - anything else: [rectangle]
func GenerateMermaid(flow *domain.Flow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for i := range flow.Nodes {
		node := &flow.Nodes[i]
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := shape(node.Kind)
		label := node.ID
		if node.Label != "" {
			label = node.Label
		}
		fmt.Fprintf(&sb, "    %s%s\"%s<br/><i>%s</i>\"%s\n", safeID, opener, quote(label), node.Kind, closer)

		for _, e := range edges(node) {
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, e.arrow(), sanitizeMermaidID(e.to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Call overlay\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] || id == overlay.CurrentNode {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func shape(kind domain.NodeKind) (string, string) {
	switch kind {
	case domain.KindStart:
		return "((", "))"
	case domain.KindFunction:
		return "[[", "]]"
	case domain.KindLogicSplit:
		return "{", "}"
	case domain.KindCollectInput, domain.KindPressDigit:
		return "[/", "/]"
	case domain.KindEnding, domain.KindCallTransfer, domain.KindAgentTransfer:
		return "([", "])"
	}
	return "[", "]"
}

type edge struct {
	to     string
	label  string
	dotted bool
}

func (e edge) arrow() string {
	switch {
	case e.label == "" && e.dotted:
		return "-.->"
	case e.label == "":
		return "-->"
	case e.dotted:
		return fmt.Sprintf("-. \"%s\" .->", quote(e.label))
	}
	return fmt.Sprintf("-- \"%s\" -->", quote(e.label))
}

// edges lists the outgoing edges of node in routing order.
func edges(node *domain.Node) []edge {
	var out []edge
	switch s := node.Strategy().(type) {
	case domain.Fixed:
		out = append(out, edge{to: s.Target})
	case domain.AfterAnyResponse:
		out = append(out, edge{to: s.Target, label: "after response"})
	case domain.Conditional:
		for _, t := range s.Transitions {
			out = append(out, edge{to: t.NextNode, label: truncate(t.Condition)})
		}
	}

	switch d := node.Data.(type) {
	case *domain.LogicSplitData:
		for _, c := range d.Conditions {
			out = append(out, edge{to: c.NextNode, label: truncate(ConditionText(c))})
		}
		if d.DefaultNextNode != "" {
			out = append(out, edge{to: d.DefaultNextNode, label: "default", dotted: true})
		}
	case *domain.PressDigitData:
		for _, m := range d.Digits {
			out = append(out, edge{to: m.NextNode, label: "press " + m.Digit})
		}
	}
	return out
}

// ConditionText renders a logic split condition as a short expression.
func ConditionText(c domain.LogicSplitCondition) string {
	switch c.Operator {
	case domain.OpExists, domain.OpNotExists:
		return fmt.Sprintf("%s %s", c.Variable, strings.ReplaceAll(string(c.Operator), "_", " "))
	}
	return fmt.Sprintf("%s %s %s", c.Variable, operatorSymbol(c.Operator), c.Value)
}

func operatorSymbol(op domain.Operator) string {
	switch op {
	case domain.OpEquals:
		return "=="
	case domain.OpNotEquals:
		return "!="
	case domain.OpGreaterThan:
		return ">"
	case domain.OpGreaterThanOrEqual:
		return ">="
	case domain.OpLessThan:
		return "<"
	case domain.OpLessThanOrEqual:
		return "<="
	}
	return strings.ReplaceAll(string(op), "_", " ")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLabel {
		return s
	}
	return string(r[:maxLabel-1]) + "…"
}

func quote(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '/', '\\', ' ':
			return '_'
		}
		return r
	}, id)
}
