package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Registry maps executor names to NodeExecutor implementations so nodes
// can declare which executor handles them.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]NodeExecutor
	fallback  NodeExecutor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]NodeExecutor)}
}

// Register binds an executor to a name. Registering an empty name, a nil
// executor or a name already taken is an error.
func (r *Registry) Register(name string, exec NodeExecutor) error {
	if name == "" {
		return fmt.Errorf("executor name cannot be empty")
	}
	if exec == nil {
		return fmt.Errorf("executor %q cannot be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[name]; exists {
		return fmt.Errorf("executor %q already registered", name)
	}
	r.executors[name] = exec
	return nil
}

// Lookup returns the executor registered under name.
func (r *Registry) Lookup(name string) (NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[name]
	return exec, ok
}

// SetDefault installs the executor used for nodes that name no executor.
func (r *Registry) SetDefault(exec NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = exec
}

// Default returns the fallback executor, or nil when none is set.
func (r *Registry) Default() NodeExecutor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Names returns the registered executor names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runNode executes a single node through executor resolution, timeout,
// retry and panic handling. It returns the node output, the number of
// retries consumed and the terminal error if all attempts failed.
func (e *Executor) runNode(ctx context.Context, exec NodeExecutor, n *Node) (map[string]any, int, error) {
	target, err := e.resolveExecutor(exec, n)
	if err != nil {
		return nil, 0, err
	}

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
			attribute.String("node.id", n.ID),
			attribute.String("node.kind", n.Kind),
			attribute.Bool("node.parallel", n.Parallel),
		))
		defer span.End()
	}

	if n.Retry == nil {
		output, err := e.attempt(ctx, target, n)
		return output, 0, err
	}

	var lastErr error
	for i := 0; i <= n.Retry.MaxRetries; i++ {
		if i > 0 {
			delay := n.Retry.CalculateDelay(i)
			select {
			case <-ctx.Done():
				return nil, i - 1, &WorkflowError{
					Code:    WorkflowErrorWorkflowCancelled,
					Message: fmt.Sprintf("retry wait for node %s interrupted", n.ID),
					NodeID:  n.ID,
					Cause:   ctx.Err(),
				}
			case <-time.After(delay):
			}
		}
		output, err := e.attempt(ctx, target, n)
		if err == nil {
			return output, i, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, i, lastErr
		}
	}
	return nil, n.Retry.MaxRetries, &NodeError{
		Code:    "MAX_RETRIES_EXCEEDED",
		Message: fmt.Sprintf("node %s failed after %d attempt(s)", n.ID, n.Retry.MaxRetries+1),
		Details: map[string]any{"max_retries": n.Retry.MaxRetries},
		Cause:   lastErr,
	}
}

// resolveExecutor picks the executor responsible for a node: the one it
// names in the registry, otherwise the per-run executor, otherwise the
// registry default.
func (e *Executor) resolveExecutor(exec NodeExecutor, n *Node) (NodeExecutor, error) {
	if n.Executor != "" {
		if e.registry == nil {
			return nil, &NodeError{
				Code:    "UNKNOWN_EXECUTOR",
				Message: fmt.Sprintf("node %s names executor %q but no registry is configured", n.ID, n.Executor),
				Details: map[string]any{"executor": n.Executor},
			}
		}
		target, ok := e.registry.Lookup(n.Executor)
		if !ok {
			return nil, &NodeError{
				Code:    "UNKNOWN_EXECUTOR",
				Message: fmt.Sprintf("no executor registered under %q", n.Executor),
				Details: map[string]any{"executor": n.Executor},
			}
		}
		return target, nil
	}
	if exec != nil {
		return exec, nil
	}
	if e.registry != nil {
		if def := e.registry.Default(); def != nil {
			return def, nil
		}
	}
	return nil, &NodeError{
		Code:    "UNKNOWN_EXECUTOR",
		Message: fmt.Sprintf("no executor available for node %s", n.ID),
	}
}

type invokeResult struct {
	output map[string]any
	err    error
}

// attempt performs one callback invocation under the node's timeout. The
// callback runs in its own goroutine so an executor that ignores its
// context cannot wedge the dispatcher; on timeout the goroutine is
// abandoned and its eventual result discarded.
func (e *Executor) attempt(ctx context.Context, target NodeExecutor, n *Node) (map[string]any, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = e.nodeTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resCh := make(chan invokeResult, 1)
	go func() {
		output, err := invoke(runCtx, target, n)
		resCh <- invokeResult{output: output, err: err}
	}()

	select {
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, &WorkflowError{
				Code:    WorkflowErrorWorkflowCancelled,
				Message: fmt.Sprintf("node %s interrupted", n.ID),
				NodeID:  n.ID,
				Cause:   ctx.Err(),
			}
		}
		return nil, &WorkflowError{
			Code:    WorkflowErrorNodeTimeout,
			Message: fmt.Sprintf("node %s timed out after %s", n.ID, timeout),
			NodeID:  n.ID,
			Cause:   context.DeadlineExceeded,
		}
	case res := <-resCh:
		return res.output, res.err
	}
}

// invoke calls the executor, converting a panic into a node error so one
// misbehaving callback cannot take down the whole batch.
func invoke(ctx context.Context, exec NodeExecutor, n *Node) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = &NodeError{
				Code:    "NODE_PANICKED",
				Message: fmt.Sprintf("node executor panicked: %v", r),
				Details: map[string]any{"node_id": n.ID},
			}
		}
	}()
	return exec.Execute(ctx, n)
}
