// Package worker runs the lease-execute-report loop against an
// execution queue's worker side: the Go analogue of mazepa's TQWorker,
// generalized beyond its SQS-specific pull_tasks(lease_seconds, ...) call to
// any queue.Queue.
package worker

import (
	"context"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/sync/errgroup"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/queue"
	"github.com/flowrunner/flowrunner/engine/task"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

// Config tunes the worker loop.
type Config struct {
	// Concurrency bounds how many tasks from a single lease batch run at
	// once.
	Concurrency int
	// LeaseMaxNum is the maximum number of tasks requested per PullTasks
	// call.
	LeaseMaxNum int
	// EmptyPollWait is how long the loop waits before polling again after
	// a lease that returned zero tasks.
	EmptyPollWait time.Duration
	// MaxPollsPerSecond throttles PullTasks calls regardless of outcome,
	// so a misbehaving queue can't be hammered by a tight loop.
	MaxPollsPerSecond int64
}

// DefaultConfig is a reasonable single-process worker configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		LeaseMaxNum:       1,
		EmptyPollWait:     1 * time.Second,
		MaxPollsPerSecond: 10,
	}
}

// Acker is implemented by queues that require an explicit ack once a
// leased task's outcome has been durably reported (e.g. the Redis-backed
// remote queue). Queues without a pending-entries concept, like Local, do
// not need to implement it.
type Acker interface {
	Ack(ctx context.Context, id core.ID) error
}

// Run leases tasks from q and executes them against reg until ctx is
// canceled. Each leased batch runs with up to cfg.Concurrency tasks in
// flight at once; the loop waits for the whole batch before leasing again.
func Run(ctx context.Context, q queue.Queue, reg *task.Registry, cfg Config) error {
	log := logger.FromContext(ctx)
	throttle, err := newPollThrottle(cfg.MaxPollsPerSecond)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := throttle(ctx); err != nil {
			return err
		}

		tasks, err := q.PullTasks(ctx, cfg.LeaseMaxNum)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.EmptyPollWait):
			}
			continue
		}

		log.Debug("worker leased tasks", "count", len(tasks))
		if err := runBatch(ctx, q, tasks, reg, cfg.Concurrency); err != nil {
			return err
		}
	}
}

func runBatch(ctx context.Context, q queue.Queue, tasks []*task.Task, reg *task.Registry, concurrency int) error {
	acker, _ := q.(Acker)
	log := logger.FromContext(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			t.Invoke(gctx, reg)
			if acker != nil {
				if err := acker.Ack(gctx, t.ID); err != nil {
					log.Error("failed to ack leased task", "task_id", t.ID.String(), "error", err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func newPollThrottle(maxPerSecond int64) (func(context.Context) error, error) {
	if maxPerSecond <= 0 {
		return func(context.Context) error { return nil }, nil
	}
	store := memory.NewStore()
	lim := limiter.New(store, limiter.Rate{Period: time.Second, Limit: maxPerSecond})
	const key = "worker.poll"
	return func(ctx context.Context) error {
		ctxVal, err := lim.Get(ctx, key)
		if err != nil {
			return err
		}
		if ctxVal.Reached {
			wait := time.Until(time.Unix(ctxVal.Reset, 0))
			if wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
		}
		return nil
	}, nil
}
