package validator

import "github.com/ringwire/callflow/pkg/domain"

// Unreachable lists node ids that cannot be reached from the start node.
// They are not an error; editors keep drafts around. The CLI reports them as warnings.
func Unreachable(flow *domain.Flow) []string {
	byID := make(map[string]*domain.Node, len(flow.Nodes))
	var startID string
	for i := range flow.Nodes {
		n := &flow.Nodes[i]
		byID[n.ID] = n
		if n.Kind == domain.KindStart && startID == "" {
			startID = n.ID
		}
	}
	if startID == "" {
		return nil
	}

	visited := make(map[string]bool)
	queue := []string{startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		n, ok := byID[current]
		if !ok {
			continue
		}
		for _, target := range n.Targets() {
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}

	var unreachable []string
	for _, n := range flow.Nodes {
		if !visited[n.ID] {
			unreachable = append(unreachable, n.ID)
		}
	}
	return unreachable
}
