package flow

import (
	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
)

// ChildKind discriminates the two things a flow can emit as a child:
// a leaf task or a nested sub-flow.
type ChildKind int

const (
	ChildTask ChildKind = iota
	ChildFlow
)

// Child is a tagged union of *task.Task and *Flow. The expansion step in
// the execution state discriminates once and routes into the ready-task
// result list or the ongoing-flows map.
type Child struct {
	Kind ChildKind
	Task *task.Task
	Flow *Flow
}

// OfTask wraps a task as a flow child.
func OfTask(t *task.Task) Child {
	return Child{Kind: ChildTask, Task: t}
}

// OfFlow wraps a sub-flow as a flow child.
func OfFlow(f *Flow) Child {
	return Child{Kind: ChildFlow, Flow: f}
}

// ID returns the wrapped task's or flow's ID.
func (c Child) ID() core.ID {
	if c.Kind == ChildTask {
		return c.Task.ID
	}
	return c.Flow.ID
}

func (c Child) stampEnv(env task.ExecutionEnv) Child {
	switch c.Kind {
	case ChildTask:
		c.Task.Env = env
	case ChildFlow:
		c.Flow.Env = env
	}
	return c
}
