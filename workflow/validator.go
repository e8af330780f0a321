package workflow

import (
	"fmt"
	"strings"
)

// DFS colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the current DFS path
	colorBlack        // fully explored
)

// detectCycle runs a depth-first search over the adjacency list and
// returns one cycle as an ordered ID path with the first node repeated at
// the end, or nil when the graph is acyclic. The order slice fixes the
// visit order so the reported cycle is deterministic.
func detectCycle(order []string, adj map[string][]string) []string {
	colors := make(map[string]int, len(order))
	parent := make(map[string]string, len(order))

	var cycle []string
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = colorGray
		for _, next := range adj[id] {
			switch colors[next] {
			case colorGray:
				cycle = buildCyclePath(parent, id, next)
				return true
			case colorWhite:
				parent[next] = id
				if visit(next) {
					return true
				}
			}
		}
		colors[id] = colorBlack
		return false
	}

	for _, id := range order {
		if colors[id] == colorWhite && visit(id) {
			return cycle
		}
	}
	return nil
}

// buildCyclePath reconstructs a cycle from the DFS parent chain. start is
// the node whose edge closed the cycle back to target, which is an
// ancestor of start on the current DFS path.
func buildCyclePath(parent map[string]string, start, target string) []string {
	path := []string{start}
	for at := start; at != target; {
		at = parent[at]
		path = append(path, at)
	}
	// Walk collected the path against edge direction; reverse it and close
	// the loop.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return append(path, path[0])
}

// kahnSort computes a topological order using Kahn's algorithm, seeding
// and processing nodes in the given order so the result is deterministic.
// ok is false when a cycle prevents a complete ordering.
func kahnSort(order []string, adj map[string][]string) (sorted []string, ok bool) {
	inDegree := make(map[string]int, len(order))
	for _, id := range order {
		inDegree[id] = 0
	}
	for _, neighbors := range adj {
		for _, next := range neighbors {
			inDegree[next]++
		}
	}

	var queue []string
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted = make([]string, 0, len(order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(sorted) != len(order) {
		return nil, false
	}
	return sorted, true
}

// DAGValidator checks workflow graph structure before execution.
type DAGValidator struct{}

// NewDAGValidator creates a new validator.
func NewDAGValidator() *DAGValidator {
	return &DAGValidator{}
}

// Validate checks that the graph is executable: it is non-nil, has at
// least one node, and its dependency edges form no cycle.
func (v *DAGValidator) Validate(g *Graph) error {
	if g == nil {
		return &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "workflow graph cannot be nil",
		}
	}
	if g.NodeCount() == 0 {
		return &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: fmt.Sprintf("workflow %s has no nodes", g.Name),
		}
	}
	if cycle := g.FindCycle(); len(cycle) > 0 {
		return &WorkflowError{
			Code:    WorkflowErrorCycleDetected,
			Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		}
	}
	return nil
}

// DetectCycles returns one dependency cycle in the graph, or nil when it
// is acyclic.
func (v *DAGValidator) DetectCycles(g *Graph) []string {
	if g == nil {
		return nil
	}
	return g.FindCycle()
}

// TopologicalSort returns the graph's node IDs in dependency order.
func (v *DAGValidator) TopologicalSort(g *Graph) ([]string, error) {
	if g == nil {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "workflow graph cannot be nil",
		}
	}
	return g.TopologicalOrder()
}
