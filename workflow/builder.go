package workflow

import "fmt"

// GraphBuilder assembles a workflow graph with a fluent API. Errors are
// collected as construction proceeds and surfaced together by Build.
type GraphBuilder struct {
	graph  *Graph
	errors []error
}

// NewGraphBuilder starts a builder for a named workflow.
func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{graph: NewGraph(name)}
}

// WithDescription sets the workflow description.
func (b *GraphBuilder) WithDescription(description string) *GraphBuilder {
	b.graph.Description = description
	return b
}

// AddNode adds a prepared node to the graph.
func (b *GraphBuilder) AddNode(n *Node) *GraphBuilder {
	if _, err := b.graph.AddNode(n); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// AddTask adds a plain task node with the given ID and description.
func (b *GraphBuilder) AddTask(id, description string) *GraphBuilder {
	return b.AddNode(NewNode(id, description))
}

// AddEdge records that node to depends on node from.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if err := b.graph.AddEdge(from, to); err != nil {
		b.errors = append(b.errors, err)
	}
	return b
}

// WithDependency declares that nodeID depends on each of the given nodes.
func (b *GraphBuilder) WithDependency(nodeID string, dependsOn ...string) *GraphBuilder {
	for _, dep := range dependsOn {
		b.AddEdge(dep, nodeID)
	}
	return b
}

// Build validates the assembled graph and returns it. All accumulated
// construction errors and validation failures are reported together.
func (b *GraphBuilder) Build() (*Graph, error) {
	errs := make([]error, len(b.errors))
	copy(errs, b.errors)
	if err := NewDAGValidator().Validate(b.graph); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("graph validation failed with %d error(s): %v", len(errs), errs)
	}
	return b.graph, nil
}
