package workflow

import (
	"math"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeStatus represents the lifecycle state of a workflow node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
	NodeStatusBlocked   NodeStatus = "blocked"
)

// String returns the string representation of the node status.
func (s NodeStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is final. Blocked is deliberately
// non-terminal: a blocked node can be released back to pending.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// validNodeTransition is the node state machine. Completion and failure are
// only reachable through running; skipping only applies to work that never
// started.
func validNodeTransition(from, to NodeStatus) bool {
	switch from {
	case NodeStatusPending:
		return to == NodeStatusRunning || to == NodeStatusSkipped || to == NodeStatusBlocked
	case NodeStatusRunning:
		return to == NodeStatusCompleted || to == NodeStatusFailed || to == NodeStatusBlocked
	case NodeStatusBlocked:
		return to == NodeStatusPending
	default:
		return false
	}
}

// BackoffStrategy defines the strategy for calculating retry delays.
type BackoffStrategy string

const (
	// BackoffConstant returns a constant delay for all retry attempts.
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear increases the delay linearly with each retry attempt.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential increases the delay exponentially with each retry attempt.
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy defines the retry behavior for a workflow node.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int `json:"max_retries"`
	// BackoffStrategy determines how delays are calculated between retries.
	BackoffStrategy BackoffStrategy `json:"backoff_strategy"`
	// InitialDelay is the delay before the first retry attempt.
	InitialDelay time.Duration `json:"initial_delay"`
	// MaxDelay caps the delay between retry attempts (exponential backoff).
	MaxDelay time.Duration `json:"max_delay"`
	// Multiplier is the factor by which the delay grows (exponential backoff).
	Multiplier float64 `json:"multiplier"`
}

// CalculateDelay calculates the delay duration for a given retry attempt
// based on the configured backoff strategy.
func (rp *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	switch rp.BackoffStrategy {
	case BackoffConstant:
		return rp.InitialDelay
	case BackoffLinear:
		return rp.InitialDelay + (rp.InitialDelay * time.Duration(attempt))
	case BackoffExponential:
		delay := time.Duration(float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt)))
		if delay > rp.MaxDelay {
			return rp.MaxDelay
		}
		return delay
	default:
		return rp.InitialDelay
	}
}

// Node is a single task in a workflow graph. The owning Graph holds the
// canonical copy: status, timestamps, and the result slot are only written
// through Graph methods, which serialize access.
type Node struct {
	// Identity and task description.
	ID          string `json:"id"`
	Description string `json:"description"`
	Kind        string `json:"kind,omitempty"`
	Label       string `json:"label,omitempty"`

	// Executor names the registered executor this node is dispatched to.
	// Empty means the run-wide default executor.
	Executor string `json:"executor,omitempty"`

	// Scheduling hints. Parallel nodes fan out within a layer; sequential
	// nodes run one at a time afterwards, highest Priority first.
	// EstimatedDuration feeds the serial-time estimate in run metrics.
	Parallel          bool          `json:"parallel"`
	Priority          int           `json:"priority,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	// Execution control.
	Timeout time.Duration `json:"timeout,omitempty"`
	Retry   *RetryPolicy  `json:"retry,omitempty"`

	// Meta carries caller-defined extension data. The engine never
	// interprets it; use DecodeMeta to project it onto a typed struct.
	Meta map[string]any `json:"meta,omitempty"`

	// Execution state, owned by the Graph.
	Status      NodeStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Output holds the executor's result for completed nodes. Failure holds
	// the failure message for failed nodes, the reason for skipped ones,
	// and the block reason for blocked ones.
	Output  map[string]any `json:"output,omitempty"`
	Failure string         `json:"failure,omitempty"`
	failure *NodeError

	// DependsOn and Dependents are kept mutually consistent by the Graph.
	DependsOn  map[string]struct{} `json:"-"`
	Dependents map[string]struct{} `json:"-"`

	CreatedAt time.Time `json:"created_at"`

	// seq is the insertion sequence within the graph; it makes the
	// executable set and plan layers deterministic.
	seq int
}

// NewNode creates a pending node with the given ID and task description.
// Nodes default to parallel execution. An empty ID is allowed; the graph
// assigns one when the node is added.
func NewNode(id, description string) *Node {
	return &Node{
		ID:          id,
		Description: description,
		Parallel:    true,
		Status:      NodeStatusPending,
		DependsOn:   make(map[string]struct{}),
		Dependents:  make(map[string]struct{}),
		CreatedAt:   time.Now(),
	}
}

// CanExecute reports whether every dependency of the node is in the given
// completed set. It does not inspect the node's own status.
func (n *Node) CanExecute(completed map[string]struct{}) bool {
	for depID := range n.DependsOn {
		if _, ok := completed[depID]; !ok {
			return false
		}
	}
	return true
}

// DependencyIDs returns the node's dependency IDs in sorted order.
func (n *Node) DependencyIDs() []string {
	return sortedKeys(n.DependsOn)
}

// DependentIDs returns the IDs of nodes that depend on this node, sorted.
func (n *Node) DependentIDs() []string {
	return sortedKeys(n.Dependents)
}

// DisplayName returns the label if set, otherwise the node ID.
func (n *Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Resolved reports whether the node reached a terminal status.
func (n *Node) Resolved() bool {
	return n.Status.IsTerminal()
}

// Duration returns the observed execution time, or zero if the node has not
// both started and finished.
func (n *Node) Duration() time.Duration {
	if n.StartedAt == nil || n.CompletedAt == nil {
		return 0
	}
	return n.CompletedAt.Sub(*n.StartedAt)
}

// DecodeMeta decodes the node's Meta map into out, which must be a pointer
// to a struct tagged with `mapstructure`. Duration strings such as "30s"
// decode into time.Duration fields.
func (n *Node) DecodeMeta(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(n.Meta)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
