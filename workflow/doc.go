// Package workflow provides a dependency-aware task graph with dynamic
// structure and a bounded-concurrency dispatcher.
//
// A workflow is a directed graph of task nodes joined by prerequisite
// edges. Unlike a static DAG pipeline, the graph may be grown and pruned
// while a run is underway: completed work is preserved, new nodes become
// eligible as their dependencies complete, and removal repairs the
// surrounding adjacency. The dispatcher walks the graph layer by layer,
// fanning ready nodes out to a bounded worker pool and folding results
// back into node state.
//
// # Core Architecture
//
// The package is built around a small number of components:
//
//   - Node: One task with lifecycle status, dependency sets, retry policy
//     and result payload
//   - Graph: The dependency graph plus the runtime state of a run over
//     it; all operations are safe for concurrent use
//   - GraphBuilder: Fluent construction with error accumulation and
//     validation at Build time
//   - Executor: Layer-by-layer dispatch with a concurrency limit, retry,
//     timeout and panic isolation around an opaque NodeExecutor callback
//   - Manager: A registry of graphs sharing one executor, with
//     concurrent RunAll
//   - RunReport: Per-run record of node outcomes, layers and timing
//
// # Building a Graph
//
// Graphs are assembled programmatically through the builder:
//
//	g, err := workflow.NewGraphBuilder("deploy").
//	    AddTask("build", "compile artifacts").
//	    AddTask("test", "run the test suite").
//	    AddTask("release", "publish artifacts").
//	    WithDependency("test", "build").
//	    WithDependency("release", "test").
//	    Build()
//
// or declared in YAML and parsed with ParsePlan:
//
//	name: deploy
//	tasks:
//	  - id: build
//	    description: compile artifacts
//	  - id: test
//	    depends_on: [build]
//	  - id: release
//	    depends_on: [test]
//
// Direct mutation is available on the graph itself via AddNode, AddEdge,
// RemoveNode and RemoveEdge, including between execution passes.
//
// # Node Lifecycle
//
// Nodes move through a fixed state machine: pending nodes whose
// prerequisites have all completed become executable; the dispatcher
// marks them running and then completed or failed from the callback
// outcome. Nodes can also be skipped (their prerequisites can never be
// satisfied) or blocked (parked for manual intervention and returned to
// pending via UnblockNode). Terminal statuses never change again, and
// every transition outside the state machine is rejected with
// invalid_transition.
//
// # Execution
//
// The Executor owns no per-run state and may be shared. Each Execute
// pass starts or resumes the workflow, then repeatedly collects the
// executable set, records it as a layer and dispatches it:
//
//	exec := workflow.NewExecutor(
//	    workflow.WithMaxParallel(8),
//	    workflow.WithLogger(logger),
//	    workflow.WithFailurePolicy(workflow.FailurePolicySkipDependents),
//	)
//	report, err := exec.Execute(ctx, g, workflow.NodeExecutorFunc(run))
//
// Parallel-capable nodes of a layer run together under a buffered-channel
// semaphore; the rest run one at a time in priority order. A failing or
// panicking node never aborts its siblings. When no further progress is
// possible the executor distinguishes a completed run, a failure-induced
// stall (resolved by the configured FailurePolicy) and a structural stall
// (reported as cycle_detected or deadlock, never a spin).
//
// # Observability
//
// Runs log through a structured slog logger stamped with the workflow ID
// and correlated with OpenTelemetry spans when a tracer is configured.
// WithMeter wires counters and histograms for node outcomes, node
// durations and run durations. Both default to noop implementations.
//
// # Errors
//
// Operations return *WorkflowError values carrying a machine-readable
// code (duplicate_node, unknown_node, cycle_detected, deadlock,
// invalid_transition, workflow_finished, ...) alongside the message.
// Node-level failures surface as *NodeError with upper-case codes such
// as NODE_PANICKED or MAX_RETRIES_EXCEEDED. Both support errors.Is and
// errors.As through their Unwrap methods, and helpers like IsCode and
// IsCycleDetected cover the common checks.
package workflow
