package execution

import (
	"fmt"

	"github.com/flowrunner/flowrunner/engine/core"
)

// Fatal error codes raised by the execution state. They are the only two
// error classes State itself creates (task-body failure arrives wrapped
// as TaskFailureError via UpdateWithTaskOutcomes; graph violations arrive
// as GraphViolationError during expansion). An error returned by a flow's
// body is passed out of GetTaskBatch as is, without either wrapper.
const (
	CodeTaskFailure    = "TASK_FAILURE"
	CodeGraphViolation = "DEPENDENCY_GRAPH_VIOLATION"
)

// TaskFailureError wraps a task's reported failure. Per spec, a task
// failure is fatal: it is raised out of UpdateWithTaskOutcomes and
// propagates out of the driver loop unchanged.
type TaskFailureError struct {
	TaskID core.ID
	Err    error
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("task %q failed: %v", e.TaskID, e.Err)
}

func (e *TaskFailureError) Unwrap() error { return e.Err }

// AsCoreError renders the failure as the ambient structured error type.
func (e *TaskFailureError) AsCoreError() *core.Error {
	return core.NewError(e.Err, CodeTaskFailure, map[string]any{"task_id": e.TaskID.String()})
}

// GraphViolationError is raised when a flow declares an explicit
// dependency on an ID that is neither a known child of the emitting flow
// nor already completed.
type GraphViolationError struct {
	FlowID core.ID
	DepID  core.ID
}

func (e *GraphViolationError) Error() string {
	return fmt.Sprintf("flow %q declared a dependency on %q, which is not one of its children", e.FlowID, e.DepID)
}

// AsCoreError renders the violation as the ambient structured error type.
func (e *GraphViolationError) AsCoreError() *core.Error {
	return core.NewError(e, CodeGraphViolation, map[string]any{
		"flow_id": e.FlowID.String(),
		"dep_id":  e.DepID.String(),
	})
}
