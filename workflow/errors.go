package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// WorkflowErrorCode identifies the specific class of a workflow-level error.
type WorkflowErrorCode string

const (
	WorkflowErrorDuplicateNode       WorkflowErrorCode = "duplicate_node"
	WorkflowErrorUnknownNode         WorkflowErrorCode = "unknown_node"
	WorkflowErrorCycleDetected       WorkflowErrorCode = "cycle_detected"
	WorkflowErrorDeadlock            WorkflowErrorCode = "deadlock"
	WorkflowErrorNodeExecutionFailed WorkflowErrorCode = "node_execution_failed"
	WorkflowErrorNodeTimeout         WorkflowErrorCode = "node_timeout"
	WorkflowErrorInvalidTransition   WorkflowErrorCode = "invalid_transition"
	WorkflowErrorWorkflowFinished    WorkflowErrorCode = "workflow_finished"
	WorkflowErrorWorkflowCancelled   WorkflowErrorCode = "workflow_cancelled"
	WorkflowErrorInvalidWorkflow     WorkflowErrorCode = "invalid_workflow"
	WorkflowErrorInvalidPlan         WorkflowErrorCode = "invalid_plan"
	WorkflowErrorDuplicateWorkflow   WorkflowErrorCode = "duplicate_workflow"
	WorkflowErrorUnknownWorkflow     WorkflowErrorCode = "unknown_workflow"
)

// WorkflowError represents an error raised by graph operations or the
// execution loop. NodeID is set when the error concerns a specific node.
type WorkflowError struct {
	Code    WorkflowErrorCode `json:"code"`
	Message string            `json:"message"`
	NodeID  string            `json:"node_id,omitempty"`
	Cause   error             `json:"-"`
}

// Error implements the error interface for WorkflowError.
func (e *WorkflowError) Error() string {
	if e.NodeID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s [node: %s]: %s (caused by: %v)", e.Code, e.NodeID, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s [node: %s]: %s", e.Code, e.NodeID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface for WorkflowError.
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NodeError represents a failure produced while running a single node's
// executor callback. Codes use UPPER_SNAKE form (e.g. "NODE_TIMEOUT").
type NodeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface for NodeError.
func (e *NodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface for NodeError.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err (or anything it wraps) is a WorkflowError with
// the given code.
func IsCode(err error, code WorkflowErrorCode) bool {
	var we *WorkflowError
	return errors.As(err, &we) && we.Code == code
}

// IsDuplicateNode reports whether err indicates a node ID collision.
func IsDuplicateNode(err error) bool {
	return IsCode(err, WorkflowErrorDuplicateNode)
}

// IsUnknownNode reports whether err indicates a reference to a node that is
// not part of the graph.
func IsUnknownNode(err error) bool {
	return IsCode(err, WorkflowErrorUnknownNode)
}

// IsCycleDetected reports whether err indicates a dependency cycle.
func IsCycleDetected(err error) bool {
	return IsCode(err, WorkflowErrorCycleDetected)
}

// IsWorkflowFinished reports whether err indicates a mutation attempt on a
// workflow that already reached a terminal status.
func IsWorkflowFinished(err error) bool {
	return IsCode(err, WorkflowErrorWorkflowFinished)
}

// IsInvalidPlan reports whether err indicates a workflow plan that failed
// validation.
func IsInvalidPlan(err error) bool {
	return IsCode(err, WorkflowErrorInvalidPlan)
}

// toNodeError normalizes an arbitrary execution failure into a *NodeError
// for reporting. WorkflowErrors (e.g. timeouts) keep their code, uppercased;
// plain errors are wrapped under NODE_FAILED.
func toNodeError(err error) *NodeError {
	if err == nil {
		return nil
	}

	var ne *NodeError
	if errors.As(err, &ne) {
		return ne
	}

	var we *WorkflowError
	if errors.As(err, &we) {
		return &NodeError{
			Code:    strings.ToUpper(string(we.Code)),
			Message: we.Message,
			Cause:   err,
		}
	}

	return &NodeError{
		Code:    "NODE_FAILED",
		Message: err.Error(),
		Cause:   err,
	}
}
