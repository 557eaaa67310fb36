package queue

import (
	"context"
	"time"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
)

// Local is the in-process queue: PushTasks invokes every task synchronously
// in the caller's goroutine and buffers the resulting outcomes until the
// driver pulls them. It has no wire format, no visibility timeout, and no
// lease concept -- it exists for single-process runs and tests.
type Local struct {
	name     string
	registry *task.Registry
	outcomes map[core.ID]task.Outcome
}

// NewLocal builds a Local queue bound to reg, the registry tasks pushed to
// it will be invoked against.
func NewLocal(name string, reg *task.Registry) *Local {
	return &Local{name: name, registry: reg, outcomes: make(map[core.ID]task.Outcome)}
}

func (q *Local) Name() string { return q.name }

// SynchronousPush reports true: by the time PushTasks returns, every task
// in the batch has already run and its outcome is buffered, so the driver
// has no reason to wait before pulling outcomes.
func (q *Local) SynchronousPush() bool { return true }

// Purge drops any buffered, not-yet-pulled outcomes.
func (q *Local) Purge(_ context.Context) error {
	q.outcomes = make(map[core.ID]task.Outcome)
	return nil
}

// PushTasks runs every task to completion immediately and stores its
// outcome for the next PullTaskOutcomes call.
func (q *Local) PushTasks(ctx context.Context, tasks []*task.Task) error {
	for _, t := range tasks {
		q.outcomes[t.ID] = t.Invoke(ctx, q.registry)
	}
	return nil
}

// PullTaskOutcomes drains up to maxNum buffered outcomes. maxTime is
// accepted for interface symmetry with remote backends; Local never blocks
// waiting for more outcomes to arrive since PushTasks already ran them.
func (q *Local) PullTaskOutcomes(_ context.Context, maxNum int, _ time.Duration) (map[core.ID]task.Outcome, error) {
	out := make(map[core.ID]task.Outcome, maxNum)
	for id, outcome := range q.outcomes {
		if len(out) >= maxNum {
			break
		}
		out[id] = outcome
		delete(q.outcomes, id)
	}
	return out, nil
}

// PullTasks never returns work: Local has no worker side, everything runs
// inline in PushTasks.
func (q *Local) PullTasks(_ context.Context, _ int) ([]*task.Task, error) {
	return nil, nil
}
