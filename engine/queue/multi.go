package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
)

// Multi fans a single logical queue out over several backing queues, routed
// by execution-env tag: a task goes to the first queue whose name contains
// every one of the task's tags as a substring. This mirrors mazepa's
// tag-in-queue-name convention, where a queue named "gpu_a100" matches any
// task tagged with a subset of {"gpu", "a100"}.
type Multi struct {
	name   string
	queues []Queue
}

// NewMulti builds a router over queues. Its Name is every backing queue's
// name joined with "_", in order.
func NewMulti(queues ...Queue) *Multi {
	names := make([]string, len(queues))
	for i, q := range queues {
		names[i] = q.Name()
	}
	return &Multi{name: strings.Join(names, "_"), queues: queues}
}

func (m *Multi) Name() string { return m.name }

// SynchronousPush reports true only if every backing queue finishes its
// pushed work synchronously, matching the same spec §4.5 step d rule the
// Local queue implements.
func (m *Multi) SynchronousPush() bool {
	for _, q := range m.queues {
		sp, ok := q.(SynchronousPusher)
		if !ok || !sp.SynchronousPush() {
			return false
		}
	}
	return true
}

func (m *Multi) Purge(ctx context.Context) error {
	for _, q := range m.queues {
		if err := q.Purge(ctx); err != nil {
			return err
		}
	}
	return nil
}

// PushTasks routes every task to the first matching queue. A task whose
// tag set matches no backing queue's name is a configuration error.
func (m *Multi) PushTasks(ctx context.Context, tasks []*task.Task) error {
	byQueue := make(map[string][]*task.Task, len(m.queues))
	for _, t := range tasks {
		q := m.match(t)
		if q == nil {
			return fmt.Errorf("no queue matches tags %v for task %q", t.Env.TagSlice(), t.ID)
		}
		byQueue[q.Name()] = append(byQueue[q.Name()], t)
	}
	for _, q := range m.queues {
		if err := q.PushTasks(ctx, byQueue[q.Name()]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) match(t *task.Task) Queue {
	for _, q := range m.queues {
		if allTagsIn(t.Env.TagSlice(), q.Name()) {
			return q
		}
	}
	return nil
}

func allTagsIn(tags []string, name string) bool {
	for _, tag := range tags {
		if !strings.Contains(name, tag) {
			return false
		}
	}
	return true
}

// PullTaskOutcomes drains each backing queue in order until maxNum outcomes
// are collected or maxTime elapses across the whole call.
func (m *Multi) PullTaskOutcomes(ctx context.Context, maxNum int, maxTime time.Duration) (map[core.ID]task.Outcome, error) {
	deadline := time.Now().Add(maxTime)
	result := make(map[core.ID]task.Outcome)
	for _, q := range m.queues {
		remaining := maxNum - len(result)
		if remaining <= 0 {
			break
		}
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		outcomes, err := q.PullTaskOutcomes(ctx, remaining, wait)
		if err != nil {
			return nil, err
		}
		for id, outcome := range outcomes {
			result[id] = outcome
		}
		if len(result) >= maxNum || time.Now().After(deadline) {
			break
		}
	}
	return result, nil
}

// PullTasks drains each backing queue in order until maxNum tasks are
// collected.
func (m *Multi) PullTasks(ctx context.Context, maxNum int) ([]*task.Task, error) {
	var result []*task.Task
	for _, q := range m.queues {
		remaining := maxNum - len(result)
		if remaining <= 0 {
			break
		}
		tasks, err := q.PullTasks(ctx, remaining)
		if err != nil {
			return nil, err
		}
		result = append(result, tasks...)
		if len(result) >= maxNum {
			break
		}
	}
	return result, nil
}
