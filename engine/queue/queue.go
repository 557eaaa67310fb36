// Package queue defines the transport contract between the execution
// state and workers, plus the in-process local implementation and the
// multi-queue tag router. The remote (message-bus) implementation lives in
// the sibling redistransport package so this package stays dependency-free
// beyond the core task type.
package queue

import (
	"context"
	"time"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
)

// Queue is the capability contract every execution-queue backend must
// satisfy: purge, push, pull-outcomes (driver side), and pull-tasks
// (worker side).
type Queue interface {
	Name() string
	Purge(ctx context.Context) error
	PushTasks(ctx context.Context, tasks []*task.Task) error
	PullTaskOutcomes(ctx context.Context, maxNum int, maxTime time.Duration) (map[core.ID]task.Outcome, error)
	PullTasks(ctx context.Context, maxNum int) ([]*task.Task, error)
}

// SynchronousPusher is implemented by queues whose PushTasks call already
// runs every task to completion before returning (the Local queue). The
// driver uses this to skip its inter-batch sleep per spec §4.5 step d,
// which is only meaningful when pushed work is still in flight.
type SynchronousPusher interface {
	SynchronousPush() bool
}
