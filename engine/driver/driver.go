// Package driver runs the push-sleep-pull loop that drains an execution
// state through an execution queue until no flow remains ongoing. It is
// the direct translation of mazepa's execute() function.
package driver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/flowrunner/flowrunner/engine/execution"
	"github.com/flowrunner/flowrunner/engine/flow"
	"github.com/flowrunner/flowrunner/engine/queue"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

// Config tunes the loop. A zero Config is not valid: use DefaultConfig as a
// starting point.
type Config struct {
	BatchGapSleep time.Duration
	PurgeAtStart  bool
	MaxBatchLen   int
	PullMaxNum    int
	PullMaxWait   time.Duration
}

// DefaultConfig mirrors mazepa's execute() defaults (4s batch gap, no
// purge, batches capped at 10000 tasks).
func DefaultConfig() Config {
	return Config{
		BatchGapSleep: 4 * time.Second,
		PurgeAtStart:  false,
		MaxBatchLen:   10000,
		PullMaxNum:    100000,
		PullMaxWait:   2500 * time.Millisecond,
	}
}

// Metrics are the observational instruments the loop records into. They
// never influence scheduling decisions.
type Metrics struct {
	BatchSize     metric.Int64Histogram
	TasksPushed   metric.Int64Counter
	TasksReported metric.Int64Counter
	Iterations    metric.Int64Counter
}

// NewMetrics builds Metrics off meter, using the same otel/metric
// instrument types the teacher wires for its own counters.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	batchSize, err := meter.Int64Histogram("flowrunner.driver.batch_size",
		metric.WithDescription("number of tasks returned by a single GetTaskBatch call"))
	if err != nil {
		return nil, err
	}
	tasksPushed, err := meter.Int64Counter("flowrunner.driver.tasks_pushed",
		metric.WithDescription("total tasks pushed to the execution queue"))
	if err != nil {
		return nil, err
	}
	tasksReported, err := meter.Int64Counter("flowrunner.driver.tasks_reported",
		metric.WithDescription("total task outcomes pulled from the execution queue"))
	if err != nil {
		return nil, err
	}
	iterations, err := meter.Int64Counter("flowrunner.driver.iterations",
		metric.WithDescription("total driver loop iterations"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		BatchSize:     batchSize,
		TasksPushed:   tasksPushed,
		TasksReported: tasksReported,
		Iterations:    iterations,
	}, nil
}

// Execute runs roots to completion against q, returning once no flow
// remains ongoing, once the queue or state reports a fatal error, or once
// ctx is done. A flow that never becomes unblocked keeps the loop running. Callers that want the default in-process behavior
// must construct a queue.Local themselves and pass it as q; q must not be
// nil.
func Execute(ctx context.Context, roots []*flow.Flow, q queue.Queue, cfg Config, metrics *Metrics) error {
	state := execution.New(roots)
	return Run(ctx, state, q, cfg, metrics)
}

// Run is Execute but takes a pre-built State, for callers resuming a
// previously checkpointed run or driving a State built directly.
func Run(ctx context.Context, state *execution.State, q queue.Queue, cfg Config, metrics *Metrics) error {
	log := logger.FromContext(ctx)
	if q == nil {
		return errNilQueue
	}
	if cfg.PurgeAtStart {
		if err := q.Purge(ctx); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(state.OngoingFlowIDs()) == 0 {
			log.Debug("driver loop finished, no ongoing flows remain")
			return nil
		}

		batch, err := state.GetTaskBatch(ctx, cfg.MaxBatchLen)
		if err != nil {
			return err
		}
		if metrics != nil {
			metrics.BatchSize.Record(ctx, int64(len(batch)))
			metrics.Iterations.Add(ctx, 1)
		}

		if err := q.PushTasks(ctx, batch); err != nil {
			return err
		}
		if metrics != nil {
			metrics.TasksPushed.Add(ctx, int64(len(batch)))
		}

		if sp, ok := q.(queue.SynchronousPusher); !ok || !sp.SynchronousPush() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.BatchGapSleep):
			}
		}

		outcomes, err := q.PullTaskOutcomes(ctx, cfg.PullMaxNum, cfg.PullMaxWait)
		if err != nil {
			return err
		}
		if metrics != nil {
			metrics.TasksReported.Add(ctx, int64(len(outcomes)))
		}

		if err := state.UpdateWithTaskOutcomes(ctx, outcomes); err != nil {
			return err
		}
	}
}

var errNilQueue = &nilQueueError{}

type nilQueueError struct{}

func (*nilQueueError) Error() string { return "driver: execution queue must not be nil" }
