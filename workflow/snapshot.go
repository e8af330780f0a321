package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/taskgraph/types"
)

// GraphSnapshot is a point-in-time copy of a workflow graph's structure
// and progress, suitable for serialization and rendering.
type GraphSnapshot struct {
	WorkflowID  types.ID       `json:"workflow_id" yaml:"workflow_id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status      WorkflowStatus `json:"status" yaml:"status"`
	TakenAt     time.Time      `json:"taken_at" yaml:"taken_at"`
	Nodes       []*NodeView    `json:"nodes" yaml:"nodes"`
	Edges       []Edge         `json:"edges,omitempty" yaml:"edges,omitempty"`
	Layers      [][]string     `json:"layers,omitempty" yaml:"layers,omitempty"`
	Stats       GraphStats     `json:"stats" yaml:"stats"`
}

// NodeView is the snapshot form of a single node.
type NodeView struct {
	ID          string        `json:"id" yaml:"id"`
	Label       string        `json:"label,omitempty" yaml:"label,omitempty"`
	Kind        string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Executor    string        `json:"executor,omitempty" yaml:"executor,omitempty"`
	Status      NodeStatus    `json:"status" yaml:"status"`
	Parallel    bool          `json:"parallel" yaml:"parallel"`
	Priority    int           `json:"priority,omitempty" yaml:"priority,omitempty"`
	DependsOn   []string      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	Failure     string        `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// Snapshot captures the current graph state. The snapshot is detached:
// later graph mutations do not affect it.
func (g *Graph) Snapshot() *GraphSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &GraphSnapshot{
		WorkflowID:  g.ID,
		Name:        g.Name,
		Description: g.Description,
		Status:      g.status,
		TakenAt:     time.Now(),
		Stats:       g.statsLocked(),
	}
	layers, _ := g.planLocked()
	snap.Layers = layers

	for _, n := range g.nodesBySeqLocked() {
		snap.Nodes = append(snap.Nodes, &NodeView{
			ID:          n.ID,
			Label:       n.Label,
			Kind:        n.Kind,
			Executor:    n.Executor,
			Status:      n.Status,
			Parallel:    n.Parallel,
			Priority:    n.Priority,
			DependsOn:   g.sortBySeqLocked(n.DependsOn),
			StartedAt:   n.StartedAt,
			CompletedAt: n.CompletedAt,
			Duration:    n.Duration(),
			Failure:     n.Failure,
		})
		for _, dependent := range g.sortBySeqLocked(n.Dependents) {
			snap.Edges = append(snap.Edges, Edge{From: n.ID, To: dependent})
		}
	}
	return snap
}

// DOT renders the current graph in Graphviz dot format.
func (g *Graph) DOT() string {
	return g.Snapshot().DOT()
}

// ToJSON serializes the snapshot as indented JSON.
func (s *GraphSnapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ToYAML serializes the snapshot as YAML.
func (s *GraphSnapshot) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Summary returns a short human-readable progress report.
func (s *GraphSnapshot) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s (%s)\n", s.Name, s.Status)
	fmt.Fprintf(&b, "Nodes: %d total, %d completed, %d failed, %d skipped, %d pending\n",
		s.Stats.Total, s.Stats.Completed, s.Stats.Failed, s.Stats.Skipped, s.Stats.Pending)
	if s.Stats.Running > 0 {
		fmt.Fprintf(&b, "Running: %d\n", s.Stats.Running)
	}
	if s.Stats.Blocked > 0 {
		fmt.Fprintf(&b, "Blocked: %d\n", s.Stats.Blocked)
	}
	fmt.Fprintf(&b, "Layers: %d\n", len(s.Layers))
	for i, layer := range s.Layers {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, strings.Join(layer, ", "))
	}
	return b.String()
}

// DOT renders the snapshot in Graphviz dot format. Node labels carry the
// node status so rendered graphs show progress.
func (s *GraphSnapshot) DOT() string {
	var b strings.Builder
	b.WriteString("digraph workflow {\n")
	b.WriteString("  rankdir=TD;\n")
	b.WriteString("  node [shape=box];\n")
	for _, n := range s.Nodes {
		label := n.ID
		if n.Label != "" {
			label = n.Label
		}
		label = strings.ReplaceAll(label, `"`, `\"`)
		fmt.Fprintf(&b, "  %q [label=\"%s\\n%s\"];\n", n.ID, label, n.Status)
	}
	for _, e := range s.Edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.From, e.To)
	}
	b.WriteString("}\n")
	return b.String()
}
