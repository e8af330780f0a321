package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_HasCycles_Acyclic(t *testing.T) {
	g := buildDiamond(t)
	assert.False(t, g.HasCycles())
	assert.Nil(t, g.FindCycle())
}

// TestGraph_FindCycle_ThreeNodeRing verifies the reported path walks the
// ring in edge direction and closes on the first node.
func TestGraph_FindCycle_ThreeNodeRing(t *testing.T) {
	g := NewGraph("ring")
	for _, id := range []string{"a", "b", "c"} {
		_, err := g.AddNode(NewNode(id, ""))
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "a"))

	assert.True(t, g.HasCycles())
	assert.Equal(t, []string{"a", "b", "c", "a"}, g.FindCycle())
}

func TestGraph_FindCycle_SelfLoop(t *testing.T) {
	g := NewGraph("selfloop")
	_, err := g.AddNode(NewNode("x", ""))
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("x", "x"))

	assert.Equal(t, []string{"x", "x"}, g.FindCycle())
}

func TestGraph_FindCycle_CycleBesideDAG(t *testing.T) {
	g := NewGraph("mixed")
	for _, id := range []string{"clean", "p", "q"} {
		_, err := g.AddNode(NewNode(id, ""))
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("p", "q"))
	require.NoError(t, g.AddEdge("q", "p"))

	cycle := g.FindCycle()
	assert.Equal(t, []string{"p", "q", "p"}, cycle)
}

func TestGraph_TopologicalOrder(t *testing.T) {
	g := buildDiamond(t)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestGraph_TopologicalOrder_Cycle(t *testing.T) {
	g := NewGraph("cyclic")
	_, _ = g.AddNode(NewNode("a", ""))
	_, _ = g.AddNode(NewNode("b", ""))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "a"))

	_, err := g.TopologicalOrder()
	assert.True(t, IsCycleDetected(err))
}

func TestGraph_ExecutionPlan_Diamond(t *testing.T) {
	g := buildDiamond(t)

	layers, err := g.ExecutionPlan()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, layers)
}

func TestGraph_ExecutionPlan_SkipsCompletedWork(t *testing.T) {
	g := buildDiamond(t)
	require.NoError(t, g.Start())
	require.NoError(t, g.MarkNodeStarted("a"))
	require.NoError(t, g.MarkNodeCompleted("a", nil))

	layers, err := g.ExecutionPlan()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b", "c"}, {"d"}}, layers)
}

func TestGraph_ExecutionPlan_Empty(t *testing.T) {
	g := NewGraph("empty")
	layers, err := g.ExecutionPlan()
	require.NoError(t, err)
	assert.Empty(t, layers)
}

// TestGraph_ExecutionPlan_CycleStall verifies a structural stall is
// classified as cycle_detected with the offending path in the message.
func TestGraph_ExecutionPlan_CycleStall(t *testing.T) {
	g := NewGraph("stall")
	for _, id := range []string{"free", "a", "b"} {
		_, err := g.AddNode(NewNode(id, ""))
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "a"))

	layers, err := g.ExecutionPlan()
	require.Error(t, err)
	assert.True(t, IsCycleDetected(err))
	assert.Contains(t, err.Error(), "a -> b -> a")
	assert.Equal(t, [][]string{{"free"}}, layers, "satisfiable work is still planned")
}

// TestGraph_ExecutionPlan_DeadlockStall verifies a stall without a cycle,
// such as depending on a failed node, is classified as deadlock.
func TestGraph_ExecutionPlan_DeadlockStall(t *testing.T) {
	g := buildDiamond(t)
	require.NoError(t, g.Start())
	require.NoError(t, g.MarkNodeStarted("a"))
	require.NoError(t, g.MarkNodeFailed("a", assert.AnError))

	layers, err := g.ExecutionPlan()
	require.Error(t, err)
	assert.True(t, IsCode(err, WorkflowErrorDeadlock))
	assert.Contains(t, err.Error(), "b, c, d")
	assert.Empty(t, layers)
}

func TestDAGValidator_Validate(t *testing.T) {
	v := NewDAGValidator()

	err := v.Validate(nil)
	assert.True(t, IsCode(err, WorkflowErrorInvalidWorkflow))

	err = v.Validate(NewGraph("empty"))
	assert.True(t, IsCode(err, WorkflowErrorInvalidWorkflow))

	assert.NoError(t, v.Validate(buildDiamond(t)))

	cyclic := NewGraph("cyclic")
	_, _ = cyclic.AddNode(NewNode("a", ""))
	_, _ = cyclic.AddNode(NewNode("b", ""))
	require.NoError(t, cyclic.AddEdge("a", "b"))
	require.NoError(t, cyclic.AddEdge("b", "a"))
	err = v.Validate(cyclic)
	assert.True(t, IsCycleDetected(err))
}

func TestDAGValidator_DetectCycles(t *testing.T) {
	v := NewDAGValidator()

	assert.Nil(t, v.DetectCycles(nil))
	assert.Nil(t, v.DetectCycles(buildDiamond(t)))

	g := NewGraph("ring")
	_, _ = g.AddNode(NewNode("a", ""))
	_, _ = g.AddNode(NewNode("b", ""))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "a"))
	assert.Equal(t, []string{"a", "b", "a"}, v.DetectCycles(g))
}

func TestDAGValidator_TopologicalSort(t *testing.T) {
	v := NewDAGValidator()

	_, err := v.TopologicalSort(nil)
	assert.True(t, IsCode(err, WorkflowErrorInvalidWorkflow))

	order, err := v.TopologicalSort(buildDiamond(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}
