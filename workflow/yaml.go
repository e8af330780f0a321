package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PlanSpec is the YAML document shape for declaring a workflow.
type PlanSpec struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description,omitempty"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// TaskSpec declares one node of a workflow plan. Durations are Go
// duration strings such as "30s" or "5m".
type TaskSpec struct {
	ID                string         `yaml:"id"`
	Description       string         `yaml:"description,omitempty"`
	Kind              string         `yaml:"kind,omitempty"`
	Label             string         `yaml:"label,omitempty"`
	Executor          string         `yaml:"executor,omitempty"`
	DependsOn         []string       `yaml:"depends_on,omitempty"`
	Parallel          *bool          `yaml:"parallel,omitempty"`
	Priority          int            `yaml:"priority,omitempty"`
	EstimatedDuration string         `yaml:"estimated_duration,omitempty"`
	Timeout           string         `yaml:"timeout,omitempty"`
	Retry             *RetrySpec     `yaml:"retry,omitempty"`
	Meta              map[string]any `yaml:"meta,omitempty"`
}

// RetrySpec declares a node retry policy in plan form.
type RetrySpec struct {
	MaxRetries   int     `yaml:"max_retries"`
	Backoff      string  `yaml:"backoff,omitempty"`
	InitialDelay string  `yaml:"initial_delay,omitempty"`
	MaxDelay     string  `yaml:"max_delay,omitempty"`
	Multiplier   float64 `yaml:"multiplier,omitempty"`
}

// planError wraps a plan validation failure under the invalid_plan code.
func planError(message string, cause error) *WorkflowError {
	return &WorkflowError{
		Code:    WorkflowErrorInvalidPlan,
		Message: message,
		Cause:   cause,
	}
}

// ParsePlan unmarshals a YAML plan document and builds the workflow
// graph it declares.
func ParsePlan(data []byte) (*Graph, error) {
	var spec PlanSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, planError("failed to parse workflow plan", err)
	}
	return FromPlan(&spec)
}

// ParsePlanFile reads and parses a YAML plan from disk.
func ParsePlanFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow plan %s: %w", path, err)
	}
	return ParsePlan(data)
}

// FromTasks builds a graph directly from task specs.
func FromTasks(name string, tasks []TaskSpec) (*Graph, error) {
	return FromPlan(&PlanSpec{Name: name, Tasks: tasks})
}

// FromPlan builds a workflow graph from an in-memory plan. Task IDs must
// be unique and every depends_on entry must name a declared task.
func FromPlan(spec *PlanSpec) (*Graph, error) {
	if spec == nil {
		return nil, planError("workflow plan cannot be nil", nil)
	}
	if spec.Name == "" {
		return nil, planError("workflow plan must have a name", nil)
	}
	if len(spec.Tasks) == 0 {
		return nil, planError(fmt.Sprintf("workflow plan %s has no tasks", spec.Name), nil)
	}

	g := NewGraph(spec.Name)
	g.Description = spec.Description

	seen := make(map[string]struct{}, len(spec.Tasks))
	for i := range spec.Tasks {
		t := &spec.Tasks[i]
		if t.ID == "" {
			return nil, planError(fmt.Sprintf("task at index %d has no id", i), nil)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, planError(fmt.Sprintf("duplicate task id %q", t.ID), nil)
		}
		seen[t.ID] = struct{}{}
		n, err := t.node()
		if err != nil {
			return nil, planError(fmt.Sprintf("task %q is invalid", t.ID), err)
		}
		if _, err := g.AddNode(n); err != nil {
			return nil, planError(fmt.Sprintf("task %q could not be added", t.ID), err)
		}
	}
	for i := range spec.Tasks {
		t := &spec.Tasks[i]
		for _, dep := range t.DependsOn {
			if _, ok := seen[dep]; !ok {
				return nil, planError(fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep), nil)
			}
			if err := g.AddEdge(dep, t.ID); err != nil {
				return nil, planError(fmt.Sprintf("task %q declares an invalid dependency", t.ID), err)
			}
		}
	}
	return g, nil
}

// node converts a task spec into a workflow node.
func (t *TaskSpec) node() (*Node, error) {
	n := NewNode(t.ID, t.Description)
	n.Kind = t.Kind
	n.Label = t.Label
	n.Executor = t.Executor
	n.Priority = t.Priority
	n.Meta = t.Meta
	if t.Parallel != nil {
		n.Parallel = *t.Parallel
	}
	if t.EstimatedDuration != "" {
		d, err := time.ParseDuration(t.EstimatedDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid estimated_duration %q: %w", t.EstimatedDuration, err)
		}
		n.EstimatedDuration = d
	}
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", t.Timeout, err)
		}
		n.Timeout = d
	}
	if t.Retry != nil {
		policy, err := t.Retry.policy()
		if err != nil {
			return nil, err
		}
		n.Retry = policy
	}
	return n, nil
}

// policy converts a retry spec, validating the backoff strategy and delay
// strings.
func (r *RetrySpec) policy() (*RetryPolicy, error) {
	if r.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries cannot be negative")
	}
	p := &RetryPolicy{
		MaxRetries:      r.MaxRetries,
		BackoffStrategy: BackoffConstant,
		Multiplier:      r.Multiplier,
	}
	if r.Backoff != "" {
		switch BackoffStrategy(r.Backoff) {
		case BackoffConstant, BackoffLinear, BackoffExponential:
			p.BackoffStrategy = BackoffStrategy(r.Backoff)
		default:
			return nil, fmt.Errorf("unknown backoff strategy %q", r.Backoff)
		}
	}
	if r.InitialDelay != "" {
		d, err := time.ParseDuration(r.InitialDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid initial_delay %q: %w", r.InitialDelay, err)
		}
		p.InitialDelay = d
	}
	if r.MaxDelay != "" {
		d, err := time.ParseDuration(r.MaxDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid max_delay %q: %w", r.MaxDelay, err)
		}
		p.MaxDelay = d
	}
	if p.BackoffStrategy == BackoffExponential {
		if p.Multiplier <= 0 {
			return nil, fmt.Errorf("exponential backoff requires a multiplier above zero")
		}
		if p.MaxDelay <= 0 {
			return nil, fmt.Errorf("exponential backoff requires max_delay")
		}
	}
	return p, nil
}
