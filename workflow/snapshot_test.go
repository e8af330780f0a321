package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestGraph_Snapshot(t *testing.T) {
	g := buildDiamond(t)
	require.NoError(t, g.Start())
	require.NoError(t, g.MarkNodeStarted("a"))
	require.NoError(t, g.MarkNodeCompleted("a", map[string]any{"hosts": 3}))

	snap := g.Snapshot()

	assert.Equal(t, g.ID, snap.WorkflowID)
	assert.Equal(t, g.Name, snap.Name)
	assert.Equal(t, WorkflowStatusRunning, snap.Status)
	assert.False(t, snap.TakenAt.IsZero())
	require.Len(t, snap.Nodes, 4)

	assert.Equal(t, "a", snap.Nodes[0].ID)
	assert.Equal(t, NodeStatusCompleted, snap.Nodes[0].Status)
	assert.NotNil(t, snap.Nodes[0].CompletedAt)
	assert.Equal(t, []string{"b", "c"}, snap.Nodes[3].DependsOn)

	assert.Equal(t, []Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "d"},
		{From: "c", To: "d"},
	}, snap.Edges)

	assert.Equal(t, [][]string{{"b", "c"}, {"d"}}, snap.Layers,
		"completed work drops out of the remaining plan")
	assert.Equal(t, 4, snap.Stats.Total)
	assert.Equal(t, 1, snap.Stats.Completed)
}

// TestGraph_Snapshot_Detached verifies later mutations do not leak into a
// snapshot taken earlier.
func TestGraph_Snapshot_Detached(t *testing.T) {
	g := buildDiamond(t)
	snap := g.Snapshot()

	_, err := g.AddNode(NewNode("late", ""))
	require.NoError(t, err)
	require.NoError(t, g.Start())
	require.NoError(t, g.MarkNodeStarted("a"))

	assert.Len(t, snap.Nodes, 4)
	assert.Equal(t, WorkflowStatusPending, snap.Status)
	assert.Equal(t, NodeStatusPending, snap.Nodes[0].Status)
}

func TestGraphSnapshot_ToJSON(t *testing.T) {
	snap := buildDiamond(t).Snapshot()

	data, err := snap.ToJSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap.Name, decoded["name"])
	assert.Equal(t, "pending", decoded["status"])
	assert.Len(t, decoded["nodes"], 4)
}

func TestGraphSnapshot_ToYAML(t *testing.T) {
	snap := buildDiamond(t).Snapshot()

	data, err := snap.ToYAML()
	require.NoError(t, err)

	var decoded GraphSnapshot
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, snap.Name, decoded.Name)
	require.Len(t, decoded.Nodes, 4)
	assert.Equal(t, "a", decoded.Nodes[0].ID)
}

func TestGraphSnapshot_Summary(t *testing.T) {
	g := buildDiamond(t)
	report, err := newTestExecutor().Execute(context.Background(), g, okExec())
	require.NoError(t, err)
	require.True(t, report.Succeeded())

	summary := g.Snapshot().Summary()
	assert.Contains(t, summary, "Workflow: "+g.Name+" (completed)")
	assert.Contains(t, summary, "Nodes: 4 total, 4 completed, 0 failed, 0 skipped, 0 pending")
	assert.Contains(t, summary, "Layers: 0")
}

func TestGraphSnapshot_DOT(t *testing.T) {
	g := buildDiamond(t)
	n := g.GetNode("a")
	n.Label = `entry "probe"`

	dot := g.DOT()
	assert.Contains(t, dot, "digraph workflow {")
	assert.Contains(t, dot, `"a" [label="entry \"probe\"\npending"];`)
	assert.Contains(t, dot, `"b" [label="b\npending"];`)
	assert.Contains(t, dot, `"a" -> "b";`)
	assert.Contains(t, dot, `"c" -> "d";`)
}
