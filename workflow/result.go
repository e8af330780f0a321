package workflow

import (
	"time"

	"github.com/zero-day-ai/taskgraph/types"
)

// NodeResult captures the outcome of a single node within a run.
type NodeResult struct {
	NodeID      string         `json:"node_id"`
	Status      NodeStatus     `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	Error       *NodeError     `json:"error,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Retries     int            `json:"retries"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// RunMetrics aggregates timing measurements for a run.
type RunMetrics struct {
	// WallClock is the elapsed time of the whole run.
	WallClock time.Duration `json:"wall_clock"`
	// NodeTime is the summed execution time of all nodes that ran.
	NodeTime time.Duration `json:"node_time"`
	// EstimatedSerial sums the declared estimated durations of all nodes,
	// approximating a fully sequential run.
	EstimatedSerial time.Duration `json:"estimated_serial"`
	// SpeedupFactor relates serial node time to wall clock time; values
	// above 1.0 indicate parallelism paid off.
	SpeedupFactor float64 `json:"speedup_factor"`
	// Layers is the number of dependency layers the run moved through.
	Layers int `json:"layers"`
	// ParallelLayers counts layers in which two or more parallel-capable
	// nodes ran together.
	ParallelLayers int `json:"parallel_layers"`
	// SequentialLayers counts the remaining layers.
	SequentialLayers int `json:"sequential_layers"`
}

// RunReport is the full record of one execution pass over a workflow
// graph.
type RunReport struct {
	WorkflowID    types.ID               `json:"workflow_id"`
	WorkflowName  string                 `json:"workflow_name"`
	Status        WorkflowStatus         `json:"status"`
	NodeResults   map[string]*NodeResult `json:"node_results"`
	Layers        [][]string             `json:"layers,omitempty"`
	Metrics       RunMetrics             `json:"metrics"`
	NodesExecuted int                    `json:"nodes_executed"`
	NodesFailed   int                    `json:"nodes_failed"`
	NodesSkipped  int                    `json:"nodes_skipped"`
	NodesBlocked  int                    `json:"nodes_blocked"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   time.Time              `json:"completed_at"`
	TotalDuration time.Duration          `json:"total_duration"`
	Error         *WorkflowError         `json:"error,omitempty"`
}

// Succeeded reports whether the run finished with the workflow completed.
func (r *RunReport) Succeeded() bool {
	return r != nil && r.Status == WorkflowStatusCompleted && r.Error == nil
}

// Result returns the recorded outcome for a node, or nil when the node
// produced none.
func (r *RunReport) Result(nodeID string) *NodeResult {
	if r == nil {
		return nil
	}
	return r.NodeResults[nodeID]
}

// buildRunReport assembles the report for a finished pass from the graph's
// node state and the per-run bookkeeping.
func buildRunReport(g *Graph, layers [][]string, retries map[string]int, startedAt time.Time, runErr *WorkflowError) *RunReport {
	report := &RunReport{
		WorkflowID:   g.ID,
		WorkflowName: g.Name,
		Status:       g.Status(),
		NodeResults:  make(map[string]*NodeResult),
		Layers:       layers,
		StartedAt:    startedAt,
		CompletedAt:  time.Now(),
		Error:        runErr,
	}
	report.TotalDuration = report.CompletedAt.Sub(startedAt)

	parallelCapable := make(map[string]bool)
	var nodeTime, estimatedSerial time.Duration
	for _, n := range g.Nodes() {
		parallelCapable[n.ID] = n.Parallel
		estimatedSerial += n.EstimatedDuration

		switch n.Status {
		case NodeStatusCompleted:
			report.NodesExecuted++
		case NodeStatusFailed:
			report.NodesFailed++
		case NodeStatusSkipped:
			report.NodesSkipped++
		case NodeStatusBlocked:
			report.NodesBlocked++
		}
		res := &NodeResult{
			NodeID:      n.ID,
			Status:      n.Status,
			Output:      n.Output,
			Error:       n.failure,
			Duration:    n.Duration(),
			Retries:     retries[n.ID],
			StartedAt:   n.StartedAt,
			CompletedAt: n.CompletedAt,
		}
		if n.Status == NodeStatusSkipped || n.Status == NodeStatusBlocked {
			res.Reason = n.Failure
		}
		nodeTime += res.Duration
		report.NodeResults[n.ID] = res
	}

	report.Metrics = RunMetrics{
		WallClock:       report.TotalDuration,
		NodeTime:        nodeTime,
		EstimatedSerial: estimatedSerial,
		Layers:          len(layers),
	}
	for _, layer := range layers {
		parallel := 0
		for _, id := range layer {
			if parallelCapable[id] {
				parallel++
			}
		}
		if parallel >= 2 {
			report.Metrics.ParallelLayers++
		} else {
			report.Metrics.SequentialLayers++
		}
	}
	if report.TotalDuration > 0 {
		serial := estimatedSerial
		if serial == 0 {
			serial = nodeTime
		}
		report.Metrics.SpeedupFactor = float64(serial) / float64(report.TotalDuration)
	}
	return report
}
