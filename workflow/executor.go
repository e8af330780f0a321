package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/zero-day-ai/taskgraph/observability"
)

// DefaultMaxParallel is the dispatcher concurrency limit when none is
// configured.
const DefaultMaxParallel = 5

// NodeExecutor performs the work behind a single node. Implementations
// must be safe for concurrent use; the dispatcher may invoke Execute for
// several nodes at once.
type NodeExecutor interface {
	Execute(ctx context.Context, node *Node) (map[string]any, error)
}

// NodeExecutorFunc adapts a function to the NodeExecutor interface.
type NodeExecutorFunc func(ctx context.Context, node *Node) (map[string]any, error)

// Execute implements NodeExecutor.
func (f NodeExecutorFunc) Execute(ctx context.Context, node *Node) (map[string]any, error) {
	return f(ctx, node)
}

// FailurePolicy controls how the dispatcher treats nodes whose
// prerequisites failed.
type FailurePolicy string

const (
	// FailurePolicyContinue leaves unsatisfiable dependents pending and
	// completes the workflow; stuck nodes are visible in the run report.
	FailurePolicyContinue FailurePolicy = "continue"
	// FailurePolicyStrict behaves like continue but ends the workflow
	// failed when any node failed.
	FailurePolicyStrict FailurePolicy = "strict"
	// FailurePolicySkipDependents marks unsatisfiable dependents skipped.
	FailurePolicySkipDependents FailurePolicy = "skip_dependents"
	// FailurePolicyBlockDependents marks unsatisfiable dependents blocked
	// and pauses the workflow so the caller can repair and re-execute.
	FailurePolicyBlockDependents FailurePolicy = "block_dependents"
)

// Executor dispatches ready workflow nodes layer by layer with bounded
// concurrency. An Executor holds no per-run state and may be shared
// across workflows and goroutines.
type Executor struct {
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *observability.Recorder
	maxParallel int
	policy      FailurePolicy
	nodeTimeout time.Duration
	limiter     *rate.Limiter
	registry    *Registry
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxParallel limits how many parallel-capable nodes of a layer run at
// once. Values below 1 are ignored.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithLogger sets the structured logger used for run logs.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer enables span creation around the run and each node.
func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithMeter records run and node metrics against the given meter.
func WithMeter(meter metric.Meter) ExecutorOption {
	return func(e *Executor) {
		e.metrics = observability.NewRecorder(meter)
	}
}

// WithFailurePolicy selects how unsatisfiable dependents of failed nodes
// are treated. Unknown policies are ignored.
func WithFailurePolicy(p FailurePolicy) ExecutorOption {
	return func(e *Executor) {
		switch p {
		case FailurePolicyContinue, FailurePolicyStrict,
			FailurePolicySkipDependents, FailurePolicyBlockDependents:
			e.policy = p
		}
	}
}

// WithNodeTimeout sets the default per-node timeout applied when a node
// declares none. Values of zero or below are ignored.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.nodeTimeout = d
		}
	}
}

// WithLaunchLimit rate-limits node launches across the run.
func WithLaunchLimit(limiter *rate.Limiter) ExecutorOption {
	return func(e *Executor) {
		e.limiter = limiter
	}
}

// WithRegistry resolves nodes that name an executor to registered
// implementations.
func WithRegistry(r *Registry) ExecutorOption {
	return func(e *Executor) {
		e.registry = r
	}
}

// NewExecutor creates an executor with the given options applied over
// defaults: concurrency 5, continue failure policy, no timeout and noop
// observability.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:      slog.Default(),
		metrics:     observability.NewRecorder(nil),
		maxParallel: DefaultMaxParallel,
		policy:      FailurePolicyContinue,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState carries the mutable bookkeeping of one execution pass.
type runState struct {
	mu      sync.Mutex
	retries map[string]int
}

func (s *runState) addRetries(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[id] += n
}

// Execute runs the workflow until it completes, fails, pauses or the
// context is cancelled. The exec argument handles nodes that do not name
// a registered executor; it may be nil when a registry is configured.
//
// Ready nodes execute in dependency layers. Within a layer,
// parallel-capable nodes fan out up to the concurrency limit while the
// rest run one at a time in priority order. A failing node never aborts
// its siblings; its dependents are handled by the failure policy once no
// further progress is possible.
//
// The returned report is non-nil whenever a pass actually ran, including
// failed and cancelled ones.
func (e *Executor) Execute(ctx context.Context, g *Graph, exec NodeExecutor) (*RunReport, error) {
	if g == nil {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "workflow graph cannot be nil",
		}
	}
	if exec == nil && e.registry == nil {
		return nil, &WorkflowError{
			Code:    WorkflowErrorInvalidWorkflow,
			Message: "no node executor provided",
		}
	}
	if cycle := g.FindCycle(); len(cycle) > 0 {
		return nil, &WorkflowError{
			Code:    WorkflowErrorCycleDetected,
			Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		}
	}
	if err := g.ensureRunnable(); err != nil {
		return nil, err
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
			attribute.String("workflow.id", g.ID.String()),
			attribute.String("workflow.name", g.Name),
			attribute.Int("workflow.node_count", g.NodeCount()),
		))
		defer span.End()
	}

	log := observability.NewRunLogger(e.logger.Handler(), g.ID.String())
	startedAt := time.Now()
	st := &runState{retries: make(map[string]int)}
	var layers [][]string

	log.Info(ctx, "workflow execution started",
		"workflow", g.Name,
		"nodes", g.NodeCount(),
		"max_parallel", e.maxParallel,
		"failure_policy", string(e.policy))

	for {
		select {
		case <-ctx.Done():
			return e.finishCancelled(ctx, g, log, layers, st, startedAt)
		default:
		}
		if g.Status() == WorkflowStatusPaused {
			log.Info(ctx, "workflow paused", "workflow", g.Name, "at", g.PausedNode())
			report := buildRunReport(g, layers, st.retries, startedAt, nil)
			e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
			return report, nil
		}

		ready := g.ExecutableNodes()
		if len(ready) == 0 {
			return e.finish(ctx, g, log, layers, st, startedAt)
		}

		layer := nodeIDs(ready)
		layers = append(layers, layer)
		log.Debug(ctx, "executing layer", "layer", len(layers), "nodes", layer)
		e.runLayer(ctx, g, exec, st, log, ready)
	}
}

// runLayer executes one batch of ready nodes. Parallel-capable nodes fan
// out on a buffered-channel semaphore; the remainder run sequentially
// afterwards, highest priority first.
func (e *Executor) runLayer(ctx context.Context, g *Graph, exec NodeExecutor, st *runState, log *observability.RunLogger, batch []*Node) {
	var parallel, sequential []*Node
	for _, n := range batch {
		if n.Parallel {
			parallel = append(parallel, n)
		} else {
			sequential = append(sequential, n)
		}
	}
	byPriority(parallel)
	byPriority(sequential)

	if len(parallel) > 0 {
		sem := make(chan struct{}, e.maxParallel)
		var wg sync.WaitGroup
		for _, n := range parallel {
			if e.limiter != nil {
				if err := e.limiter.Wait(ctx); err != nil {
					break
				}
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(n *Node) {
				defer wg.Done()
				defer func() { <-sem }()
				e.dispatchNode(ctx, g, exec, st, log, n)
			}(n)
		}
		wg.Wait()
	}

	for _, n := range sequential {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				break
			}
		}
		e.dispatchNode(ctx, g, exec, st, log, n)
	}
}

// dispatchNode moves one node through its lifecycle around the executor
// callback.
func (e *Executor) dispatchNode(ctx context.Context, g *Graph, exec NodeExecutor, st *runState, log *observability.RunLogger, n *Node) {
	if err := g.MarkNodeStarted(n.ID); err != nil {
		log.Error(ctx, "node start rejected", "node", n.DisplayName(), "error", err)
		return
	}
	log.Info(ctx, "node started", "node", n.DisplayName(), "kind", n.Kind)
	e.metrics.AddInflight(ctx, 1)
	defer e.metrics.AddInflight(ctx, -1)

	output, retries, err := e.runNode(ctx, exec, n)
	if retries > 0 {
		st.addRetries(n.ID, retries)
	}

	if err != nil {
		if merr := g.MarkNodeFailed(n.ID, err); merr != nil {
			log.Error(ctx, "node failure not recorded", "node", n.DisplayName(), "error", merr)
			return
		}
		log.Error(ctx, "node failed",
			"node", n.DisplayName(),
			"error", err,
			"retries", retries,
			"duration", n.Duration())
		e.metrics.RecordNodeFailure(ctx, n.Kind)
		e.metrics.RecordNodeDuration(ctx, n.Duration(), n.Kind, string(NodeStatusFailed))
		return
	}

	if merr := g.MarkNodeCompleted(n.ID, output); merr != nil {
		log.Error(ctx, "node completion not recorded", "node", n.DisplayName(), "error", merr)
		return
	}
	log.Info(ctx, "node completed", "node", n.DisplayName(), "duration", n.Duration())
	e.metrics.RecordNodeSuccess(ctx, n.Kind)
	e.metrics.RecordNodeDuration(ctx, n.Duration(), n.Kind, string(NodeStatusCompleted))
}

// finish resolves a pass in which no node is ready: completion, a
// failure-induced stall handled by policy, or a structural stall.
func (e *Executor) finish(ctx context.Context, g *Graph, log *observability.RunLogger, layers [][]string, st *runState, startedAt time.Time) (*RunReport, error) {
	var pendingStuck, blockedStuck []string
	for _, n := range g.UnresolvedNodes() {
		switch n.Status {
		case NodeStatusPending:
			pendingStuck = append(pendingStuck, n.ID)
		case NodeStatusBlocked:
			blockedStuck = append(blockedStuck, n.ID)
		}
	}

	if len(pendingStuck) > 0 && !g.failureInduced(pendingStuck) {
		return e.finishStalled(ctx, g, log, layers, st, startedAt, pendingStuck)
	}

	if len(pendingStuck) > 0 {
		switch e.policy {
		case FailurePolicySkipDependents:
			for _, id := range pendingStuck {
				if err := g.MarkNodeSkipped(id, "upstream dependency failed"); err != nil {
					log.Error(ctx, "node skip not recorded", "node", id, "error", err)
					continue
				}
				log.Warn(ctx, "node skipped", "node", id, "reason", "upstream dependency failed")
				e.metrics.RecordNodeSkipped(ctx, g.GetNode(id).Kind)
			}
			pendingStuck = nil
		case FailurePolicyBlockDependents:
			for _, id := range pendingStuck {
				if err := g.MarkNodeBlocked(id, "upstream dependency failed"); err != nil {
					log.Error(ctx, "node block not recorded", "node", id, "error", err)
					continue
				}
				log.Warn(ctx, "node blocked", "node", id, "reason", "upstream dependency failed")
			}
			blockedStuck = append(blockedStuck, pendingStuck...)
			pendingStuck = nil
		}
	}

	if len(blockedStuck) > 0 {
		if err := g.Pause(blockedStuck[0]); err != nil {
			log.Error(ctx, "workflow pause not recorded", "error", err)
		}
		log.Warn(ctx, "workflow paused with blocked nodes",
			"workflow", g.Name,
			"blocked", len(blockedStuck))
		report := buildRunReport(g, layers, st.retries, startedAt, nil)
		e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
		return report, nil
	}

	failed := countStatus(g, NodeStatusFailed)
	if e.policy == FailurePolicyStrict && failed > 0 {
		werr := &WorkflowError{
			Code:    WorkflowErrorNodeExecutionFailed,
			Message: fmt.Sprintf("%d of %d node(s) failed", failed, g.NodeCount()),
		}
		if err := g.Fail(werr.Message); err != nil {
			log.Error(ctx, "workflow failure not recorded", "error", err)
		}
		report := buildRunReport(g, layers, st.retries, startedAt, werr)
		log.Error(ctx, "workflow execution failed",
			"workflow", g.Name,
			"failed_nodes", failed,
			"duration", report.TotalDuration)
		e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
		return report, werr
	}

	if err := g.Complete(); err != nil {
		log.Error(ctx, "workflow completion not recorded", "error", err)
	}
	report := buildRunReport(g, layers, st.retries, startedAt, nil)
	log.Info(ctx, "workflow execution completed",
		"workflow", g.Name,
		"executed", report.NodesExecuted,
		"failed", report.NodesFailed,
		"skipped", report.NodesSkipped,
		"duration", report.TotalDuration)
	e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
	return report, nil
}

// finishStalled ends a pass that can make no progress for structural
// reasons.
func (e *Executor) finishStalled(ctx context.Context, g *Graph, log *observability.RunLogger, layers [][]string, st *runState, startedAt time.Time, stuck []string) (*RunReport, error) {
	var werr *WorkflowError
	if cycle := g.FindCycle(); len(cycle) > 0 {
		werr = &WorkflowError{
			Code:    WorkflowErrorCycleDetected,
			Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
		}
	} else {
		werr = &WorkflowError{
			Code:    WorkflowErrorDeadlock,
			Message: fmt.Sprintf("no executable nodes but %d remain unsatisfiable: %s", len(stuck), strings.Join(stuck, ", ")),
		}
	}
	if err := g.Fail(werr.Message); err != nil {
		log.Error(ctx, "workflow failure not recorded", "error", err)
	}
	report := buildRunReport(g, layers, st.retries, startedAt, werr)
	log.Error(ctx, "workflow execution stalled",
		"workflow", g.Name,
		"stuck_nodes", stuck,
		"error", werr)
	e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
	return report, werr
}

// finishCancelled ends a pass whose context was cancelled between layers.
func (e *Executor) finishCancelled(ctx context.Context, g *Graph, log *observability.RunLogger, layers [][]string, st *runState, startedAt time.Time) (*RunReport, error) {
	if err := g.Cancel("context cancelled"); err != nil {
		log.Error(ctx, "workflow cancellation not recorded", "error", err)
	}
	werr := &WorkflowError{
		Code:    WorkflowErrorWorkflowCancelled,
		Message: fmt.Sprintf("workflow %s cancelled", g.Name),
		Cause:   ctx.Err(),
	}
	report := buildRunReport(g, layers, st.retries, startedAt, werr)
	log.Warn(ctx, "workflow execution cancelled",
		"workflow", g.Name,
		"executed", report.NodesExecuted,
		"duration", report.TotalDuration)
	e.metrics.RecordRunDuration(ctx, report.TotalDuration, string(g.Status()))
	return report, werr
}

// byPriority orders nodes by descending priority, then insertion order.
func byPriority(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Priority != nodes[j].Priority {
			return nodes[i].Priority > nodes[j].Priority
		}
		return nodes[i].seq < nodes[j].seq
	})
}

func nodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func countStatus(g *Graph, status NodeStatus) int {
	count := 0
	for _, n := range g.Nodes() {
		if n.Status == status {
			count++
		}
	}
	return count
}
