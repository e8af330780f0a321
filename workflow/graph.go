package workflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zero-day-ai/taskgraph/types"
)

// WorkflowStatus represents the aggregate state of a workflow graph.
type WorkflowStatus string

const (
	// WorkflowStatusPending indicates the workflow has not started.
	WorkflowStatusPending WorkflowStatus = "pending"
	// WorkflowStatusRunning indicates the workflow is executing.
	WorkflowStatusRunning WorkflowStatus = "running"
	// WorkflowStatusPaused indicates execution is suspended at a node boundary.
	WorkflowStatusPaused WorkflowStatus = "paused"
	// WorkflowStatusCompleted indicates the workflow finished successfully.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed indicates the workflow finished with failures.
	WorkflowStatusFailed WorkflowStatus = "failed"
	// WorkflowStatusCancelled indicates the workflow was cancelled.
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// String returns the string representation of the workflow status.
func (s WorkflowStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the workflow has finished and accepts no
// further mutations.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// validWorkflowTransition reports whether a workflow may move from one
// aggregate status to another.
func validWorkflowTransition(from, to WorkflowStatus) bool {
	switch from {
	case WorkflowStatusPending:
		return to == WorkflowStatusRunning || to == WorkflowStatusCancelled
	case WorkflowStatusRunning:
		return to == WorkflowStatusPaused || to == WorkflowStatusCompleted ||
			to == WorkflowStatusFailed || to == WorkflowStatusCancelled
	case WorkflowStatusPaused:
		return to == WorkflowStatusRunning || to == WorkflowStatusFailed ||
			to == WorkflowStatusCancelled
	default:
		return false
	}
}

// Graph is a dependency-aware workflow: a set of task nodes joined by
// directed prerequisite edges, together with the runtime state of a single
// run over them. The zero value is not usable; construct with NewGraph.
//
// All exported methods are safe for concurrent use. Node pointers returned
// by accessors share state with the graph; callers that mutate node status
// directly instead of going through the Mark* methods void the lifecycle
// guarantees.
type Graph struct {
	// ID uniquely identifies this workflow.
	ID types.ID `json:"id"`
	// Name is a human-readable workflow name.
	Name string `json:"name"`
	// Description explains what the workflow does.
	Description string `json:"description,omitempty"`
	// CreatedAt is when the graph was constructed.
	CreatedAt time.Time `json:"created_at"`

	mu          sync.RWMutex
	nodes       map[string]*Node
	status      WorkflowStatus
	startedAt   *time.Time
	completedAt *time.Time
	pausedAt    string
	reason      string
	nextSeq     int
}

// NewGraph creates an empty pending workflow graph.
func NewGraph(name string) *Graph {
	return &Graph{
		ID:        types.NewID(),
		Name:      name,
		CreatedAt: time.Now(),
		nodes:     make(map[string]*Node),
		status:    WorkflowStatusPending,
	}
}

// AddNode adds a node to the graph and returns its ID. When the node has no
// ID one is generated. Dependencies already present on the node are wired
// into the graph and must reference existing nodes.
func (g *Graph) AddNode(n *Node) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked("add node"); err != nil {
		return "", err
	}
	if n == nil {
		return "", &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "node cannot be nil",
		}
	}
	if n.ID == "" {
		n.ID = types.NewID().String()
	}
	if _, exists := g.nodes[n.ID]; exists {
		return "", &WorkflowError{
			Code:    WorkflowErrorDuplicateNode,
			Message: fmt.Sprintf("node %s already exists in workflow %s", n.ID, g.Name),
			NodeID:  n.ID,
		}
	}
	if n.Status == "" {
		n.Status = NodeStatusPending
	}
	if n.DependsOn == nil {
		n.DependsOn = make(map[string]struct{})
	}
	if n.Dependents == nil {
		n.Dependents = make(map[string]struct{})
	}
	for dep := range n.DependsOn {
		prereq, ok := g.nodes[dep]
		if !ok {
			return "", &WorkflowError{
				Code:    WorkflowErrorUnknownNode,
				Message: fmt.Sprintf("node %s depends on unknown node %s", n.ID, dep),
				NodeID:  dep,
			}
		}
		prereq.Dependents[n.ID] = struct{}{}
	}

	g.nextSeq++
	n.seq = g.nextSeq
	g.nodes[n.ID] = n
	return n.ID, nil
}

// AddEdge records that node to depends on node from. Adding an existing
// edge is a no-op. Both endpoints must already be in the graph; cycles are
// representable and surface through HasCycles and ExecutionPlan rather
// than at insertion time.
func (g *Graph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked("add edge"); err != nil {
		return err
	}
	src, ok := g.nodes[from]
	if !ok {
		return &WorkflowError{
			Code:    WorkflowErrorUnknownNode,
			Message: fmt.Sprintf("edge references unknown node %s", from),
			NodeID:  from,
		}
	}
	dst, ok := g.nodes[to]
	if !ok {
		return &WorkflowError{
			Code:    WorkflowErrorUnknownNode,
			Message: fmt.Sprintf("edge references unknown node %s", to),
			NodeID:  to,
		}
	}
	dst.DependsOn[from] = struct{}{}
	src.Dependents[to] = struct{}{}
	return nil
}

// RemoveEdge deletes the dependency of to on from. Removing an edge that
// does not exist is a no-op.
func (g *Graph) RemoveEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked("remove edge"); err != nil {
		return err
	}
	src, ok := g.nodes[from]
	if !ok {
		return &WorkflowError{
			Code:    WorkflowErrorUnknownNode,
			Message: fmt.Sprintf("edge references unknown node %s", from),
			NodeID:  from,
		}
	}
	dst, ok := g.nodes[to]
	if !ok {
		return &WorkflowError{
			Code:    WorkflowErrorUnknownNode,
			Message: fmt.Sprintf("edge references unknown node %s", to),
			NodeID:  to,
		}
	}
	delete(dst.DependsOn, from)
	delete(src.Dependents, to)
	return nil
}

// RemoveNode deletes a node and every edge touching it, leaving all
// remaining adjacency consistent. Removing an unknown node is a no-op.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.mutableLocked("remove node"); err != nil {
		return err
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	for dep := range n.DependsOn {
		if prereq, ok := g.nodes[dep]; ok {
			delete(prereq.Dependents, id)
		}
	}
	for dependent := range n.Dependents {
		if succ, ok := g.nodes[dependent]; ok {
			delete(succ.DependsOn, id)
		}
	}
	delete(g.nodes, id)
	return nil
}

// GetNode returns the node with the given ID, or nil if not found.
func (g *Graph) GetNode(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodesBySeqLocked()
}

// Edges returns every dependency edge in deterministic order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge
	for _, n := range g.nodesBySeqLocked() {
		for _, dependent := range g.sortBySeqLocked(n.Dependents) {
			edges = append(edges, Edge{From: n.ID, To: dependent})
		}
	}
	return edges
}

// ExecutableNodes returns the pending nodes whose dependencies have all
// completed, in insertion order. Failed, skipped or blocked prerequisites
// do not satisfy a dependency.
func (g *Graph) ExecutableNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	completed := g.completedSetLocked()
	var ready []*Node
	for _, n := range g.nodesBySeqLocked() {
		if n.Status == NodeStatusPending && n.CanExecute(completed) {
			ready = append(ready, n)
		}
	}
	return ready
}

// UnresolvedNodes returns the nodes that have not reached a terminal
// status, in insertion order.
func (g *Graph) UnresolvedNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var open []*Node
	for _, n := range g.nodesBySeqLocked() {
		if !n.Status.IsTerminal() {
			open = append(open, n)
		}
	}
	return open
}

// ExecutionPlan computes dependency layers for the nodes that still await
// execution: each layer lists node IDs whose prerequisites are satisfied
// once every earlier layer has completed. Nodes within a layer are in
// insertion order and may run concurrently.
//
// When progress stalls the layers built so far are returned together with
// an error: cycle_detected when a dependency cycle is responsible,
// deadlock when dependencies are unsatisfiable for another reason, such
// as depending on a failed node.
func (g *Graph) ExecutionPlan() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	layers, werr := g.planLocked()
	if werr != nil {
		return layers, werr
	}
	return layers, nil
}

// planLocked peels satisfiable layers off the pending node set. Callers
// must hold at least a read lock.
func (g *Graph) planLocked() ([][]string, *WorkflowError) {
	satisfied := g.completedSetLocked()
	remaining := make(map[string]*Node)
	for id, n := range g.nodes {
		if n.Status == NodeStatusPending {
			remaining[id] = n
		}
	}

	var layers [][]string
	for len(remaining) > 0 {
		var layer []string
		for _, n := range g.nodesBySeqLocked() {
			if _, open := remaining[n.ID]; !open {
				continue
			}
			if n.CanExecute(satisfied) {
				layer = append(layer, n.ID)
			}
		}
		if len(layer) == 0 {
			return layers, g.stallErrorLocked(remaining)
		}
		for _, id := range layer {
			satisfied[id] = struct{}{}
			delete(remaining, id)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// stallErrorLocked classifies why no pending node can make progress.
func (g *Graph) stallErrorLocked(remaining map[string]*Node) *WorkflowError {
	if cycle := detectCycle(g.nodeOrderLocked(), g.adjacencyLocked()); len(cycle) > 0 {
		return &WorkflowError{
			Code:    WorkflowErrorCycleDetected,
			Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		}
	}
	var stuck []string
	for _, n := range g.nodesBySeqLocked() {
		if _, open := remaining[n.ID]; open {
			stuck = append(stuck, n.ID)
		}
	}
	return &WorkflowError{
		Code:    WorkflowErrorDeadlock,
		Message: fmt.Sprintf("no executable nodes but %d remain unsatisfiable: %s", len(stuck), strings.Join(stuck, ", ")),
	}
}

// HasCycles reports whether the dependency graph contains a cycle.
func (g *Graph) HasCycles() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(detectCycle(g.nodeOrderLocked(), g.adjacencyLocked())) > 0
}

// FindCycle returns one dependency cycle as an ordered node ID path, with
// the first node repeated at the end. It returns nil when the graph is
// acyclic.
func (g *Graph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return detectCycle(g.nodeOrderLocked(), g.adjacencyLocked())
}

// TopologicalOrder returns all node IDs in dependency order, ignoring node
// status. It fails with cycle_detected when the graph is not a DAG.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := kahnSort(g.nodeOrderLocked(), g.adjacencyLocked())
	if !ok {
		cycle := detectCycle(g.nodeOrderLocked(), g.adjacencyLocked())
		return nil, &WorkflowError{
			Code:    WorkflowErrorCycleDetected,
			Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		}
	}
	return order, nil
}

// EntryPoints returns the IDs of nodes with no dependencies, in insertion
// order.
func (g *Graph) EntryPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPointsLocked()
}

// ExitPoints returns the IDs of nodes with no dependents, in insertion
// order.
func (g *Graph) ExitPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.exitPointsLocked()
}

// Start moves the workflow from pending to running.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transitionLocked(WorkflowStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	g.startedAt = &now
	return nil
}

// Pause suspends a running workflow. The nodeID marks where execution
// stopped and is handed back by Resume; it may be empty.
func (g *Graph) Pause(nodeID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transitionLocked(WorkflowStatusPaused); err != nil {
		return err
	}
	g.pausedAt = nodeID
	return nil
}

// Resume moves a paused workflow back to running and returns the pause
// marker recorded by Pause.
func (g *Graph) Resume() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != WorkflowStatusPaused {
		if g.status.IsTerminal() {
			return "", g.finishedErrLocked("resume")
		}
		return "", &WorkflowError{
			Code:    WorkflowErrorInvalidTransition,
			Message: fmt.Sprintf("cannot resume workflow in status %s", g.status),
		}
	}
	marker := g.pausedAt
	g.pausedAt = ""
	g.status = WorkflowStatusRunning
	return marker, nil
}

// Complete moves a running workflow to completed.
func (g *Graph) Complete() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transitionLocked(WorkflowStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	g.completedAt = &now
	return nil
}

// Fail moves a running or paused workflow to failed, recording the reason.
func (g *Graph) Fail(reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transitionLocked(WorkflowStatusFailed); err != nil {
		return err
	}
	g.reason = reason
	now := time.Now()
	g.completedAt = &now
	return nil
}

// Cancel terminates the workflow from any non-terminal status, recording
// the reason.
func (g *Graph) Cancel(reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.transitionLocked(WorkflowStatusCancelled); err != nil {
		return err
	}
	g.reason = reason
	now := time.Now()
	g.completedAt = &now
	return nil
}

// ensureRunnable brings the workflow into the running status for an
// execution pass, starting a pending workflow and resuming a paused one.
func (g *Graph) ensureRunnable() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.status {
	case WorkflowStatusRunning:
		return nil
	case WorkflowStatusPending:
		if err := g.transitionLocked(WorkflowStatusRunning); err != nil {
			return err
		}
		now := time.Now()
		g.startedAt = &now
		return nil
	case WorkflowStatusPaused:
		g.pausedAt = ""
		g.status = WorkflowStatusRunning
		return nil
	default:
		return g.finishedErrLocked("execute")
	}
}

// MarkNodeStarted transitions a node from pending to running.
func (g *Graph) MarkNodeStarted(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	n.StartedAt = &now
	return nil
}

// MarkNodeCompleted transitions a node from running to completed and
// records its output.
func (g *Graph) MarkNodeCompleted(id string, output map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusCompleted); err != nil {
		return err
	}
	now := time.Now()
	n.CompletedAt = &now
	n.Output = output
	n.Failure = ""
	n.failure = nil
	return nil
}

// MarkNodeFailed transitions a node from running to failed and records the
// cause.
func (g *Graph) MarkNodeFailed(id string, cause error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusFailed); err != nil {
		return err
	}
	now := time.Now()
	n.CompletedAt = &now
	n.failure = toNodeError(cause)
	if cause != nil {
		n.Failure = cause.Error()
	} else {
		n.Failure = "node failed"
	}
	return nil
}

// MarkNodeSkipped transitions a pending node to skipped, recording why it
// will never run.
func (g *Graph) MarkNodeSkipped(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusSkipped); err != nil {
		return err
	}
	now := time.Now()
	n.CompletedAt = &now
	n.Failure = reason
	return nil
}

// MarkNodeBlocked parks a pending or running node in the blocked status,
// recording why it cannot proceed. Blocked nodes return to pending via
// UnblockNode.
func (g *Graph) MarkNodeBlocked(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusBlocked); err != nil {
		return err
	}
	n.Failure = reason
	return nil
}

// UnblockNode returns a blocked node to pending so it becomes eligible for
// execution again.
func (g *Graph) UnblockNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.nodeForUpdateLocked(id)
	if err != nil {
		return err
	}
	if err := g.nodeTransitionLocked(n, NodeStatusPending); err != nil {
		return err
	}
	n.Failure = ""
	n.StartedAt = nil
	return nil
}

// Status returns the aggregate workflow status.
func (g *Graph) Status() WorkflowStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// PausedNode returns the pause marker set by Pause, or empty when the
// workflow is not paused.
func (g *Graph) PausedNode() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pausedAt
}

// Reason returns why the workflow failed or was cancelled.
func (g *Graph) Reason() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reason
}

// StartedAt returns when the workflow started, or nil if it has not.
func (g *Graph) StartedAt() *time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.startedAt
}

// FinishedAt returns when the workflow reached a terminal status, or nil.
func (g *Graph) FinishedAt() *time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completedAt
}

// GraphStats summarizes the structure and progress of a workflow graph.
type GraphStats struct {
	Total       int            `json:"total"`
	Pending     int            `json:"pending"`
	Running     int            `json:"running"`
	Completed   int            `json:"completed"`
	Failed      int            `json:"failed"`
	Skipped     int            `json:"skipped"`
	Blocked     int            `json:"blocked"`
	HasCycles   bool           `json:"has_cycles"`
	Layers      int            `json:"layers"`
	EntryPoints []string       `json:"entry_points"`
	ExitPoints  []string       `json:"exit_points"`
	Status      WorkflowStatus `json:"status"`
}

// Stats computes summary statistics for the graph.
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.statsLocked()
}

func (g *Graph) statsLocked() GraphStats {
	stats := GraphStats{
		Total:       len(g.nodes),
		HasCycles:   len(detectCycle(g.nodeOrderLocked(), g.adjacencyLocked())) > 0,
		EntryPoints: g.entryPointsLocked(),
		ExitPoints:  g.exitPointsLocked(),
		Status:      g.status,
	}
	for _, n := range g.nodes {
		switch n.Status {
		case NodeStatusPending:
			stats.Pending++
		case NodeStatusRunning:
			stats.Running++
		case NodeStatusCompleted:
			stats.Completed++
		case NodeStatusFailed:
			stats.Failed++
		case NodeStatusSkipped:
			stats.Skipped++
		case NodeStatusBlocked:
			stats.Blocked++
		}
	}
	layers, _ := g.planLocked()
	stats.Layers = len(layers)
	return stats
}

// mutableLocked rejects structural mutations on a finished workflow.
func (g *Graph) mutableLocked(op string) error {
	if g.status.IsTerminal() {
		return g.finishedErrLocked(op)
	}
	return nil
}

func (g *Graph) finishedErrLocked(op string) *WorkflowError {
	return &WorkflowError{
		Code:    WorkflowErrorWorkflowFinished,
		Message: fmt.Sprintf("cannot %s: workflow %s is %s", op, g.Name, g.status),
	}
}

// transitionLocked applies an aggregate status change, enforcing the
// workflow state machine.
func (g *Graph) transitionLocked(to WorkflowStatus) error {
	if g.status.IsTerminal() {
		return g.finishedErrLocked(fmt.Sprintf("transition to %s", to))
	}
	if !validWorkflowTransition(g.status, to) {
		return &WorkflowError{
			Code:    WorkflowErrorInvalidTransition,
			Message: fmt.Sprintf("invalid workflow transition from %s to %s", g.status, to),
		}
	}
	g.status = to
	return nil
}

// nodeForUpdateLocked looks up a node for mutation, rejecting updates on a
// finished workflow.
func (g *Graph) nodeForUpdateLocked(id string) (*Node, error) {
	if g.status.IsTerminal() {
		return nil, g.finishedErrLocked("update node")
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil, &WorkflowError{
			Code:    WorkflowErrorUnknownNode,
			Message: fmt.Sprintf("node %s not found in workflow %s", id, g.Name),
			NodeID:  id,
		}
	}
	return n, nil
}

// nodeTransitionLocked applies a node status change, enforcing the node
// state machine.
func (g *Graph) nodeTransitionLocked(n *Node, to NodeStatus) error {
	if !validNodeTransition(n.Status, to) {
		return &WorkflowError{
			Code:    WorkflowErrorInvalidTransition,
			Message: fmt.Sprintf("invalid node transition from %s to %s", n.Status, to),
			NodeID:  n.ID,
		}
	}
	n.Status = to
	return nil
}

// failureInduced reports whether every listed node has a failed or
// skipped node among its transitive prerequisites.
func (g *Graph) failureInduced(ids []string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	memo := make(map[string]bool)
	var tainted func(id string) bool
	tainted = func(id string) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		memo[id] = false // guards against revisiting on cyclic input
		n, ok := g.nodes[id]
		if !ok {
			return false
		}
		for dep := range n.DependsOn {
			d, ok := g.nodes[dep]
			if !ok {
				continue
			}
			if d.Status == NodeStatusFailed || d.Status == NodeStatusSkipped || tainted(dep) {
				memo[id] = true
				return true
			}
		}
		return false
	}
	for _, id := range ids {
		if !tainted(id) {
			return false
		}
	}
	return true
}

// completedSetLocked returns the IDs of completed nodes as a set.
func (g *Graph) completedSetLocked() map[string]struct{} {
	completed := make(map[string]struct{})
	for id, n := range g.nodes {
		if n.Status == NodeStatusCompleted {
			completed[id] = struct{}{}
		}
	}
	return completed
}

// nodesBySeqLocked returns all nodes sorted by insertion order.
func (g *Graph) nodesBySeqLocked() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })
	return nodes
}

// nodeOrderLocked returns all node IDs in insertion order.
func (g *Graph) nodeOrderLocked() []string {
	nodes := g.nodesBySeqLocked()
	order := make([]string, len(nodes))
	for i, n := range nodes {
		order[i] = n.ID
	}
	return order
}

// sortBySeqLocked orders a set of node IDs by insertion order. IDs not in
// the graph sort last by name.
func (g *Graph) sortBySeqLocked(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := g.nodes[ids[i]]
		nj, jok := g.nodes[ids[j]]
		if iok && jok {
			return ni.seq < nj.seq
		}
		if iok != jok {
			return iok
		}
		return ids[i] < ids[j]
	})
	return ids
}

// adjacencyLocked builds the dependency-to-dependent adjacency list with
// neighbor lists in insertion order.
func (g *Graph) adjacencyLocked() map[string][]string {
	adj := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodesBySeqLocked() {
		adj[n.ID] = g.sortBySeqLocked(n.Dependents)
	}
	return adj
}

func (g *Graph) entryPointsLocked() []string {
	var entries []string
	for _, n := range g.nodesBySeqLocked() {
		if len(n.DependsOn) == 0 {
			entries = append(entries, n.ID)
		}
	}
	return entries
}

func (g *Graph) exitPointsLocked() []string {
	var exits []string
	for _, n := range g.nodesBySeqLocked() {
		if len(n.Dependents) == 0 {
			exits = append(exits, n.ID)
		}
	}
	return exits
}
