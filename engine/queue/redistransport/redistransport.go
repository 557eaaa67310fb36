// Package redistransport is the remote execution queue: a Redis Streams
// backed analogue of mazepa's SQS queue, using XADD/XREADGROUP/XACK/XAUTOCLAIM
// in place of SQS's send/receive/delete/visibility-timeout so PushTasks,
// PullTasks, and PullTaskOutcomes all have the same batch-send,
// batch-receive-with-lease, explicit-ack shape as the original.
package redistransport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

const fieldPayload = "payload"

// Retry tunes the exponential-jittered backoff applied to every publish
// (XADD) call, grounded on the same go-retry shape the teacher uses for its
// namespace provisioning call.
type Retry struct {
	DelayStart time.Duration
	DelayMax   time.Duration
	MaxRetries uint64
}

// DefaultRetry matches the teacher's org-provisioning defaults in spirit: a
// quick first retry, capped backoff, small jitter.
func DefaultRetry() Retry {
	return Retry{DelayStart: 100 * time.Millisecond, DelayMax: 5 * time.Second, MaxRetries: 5}
}

// Queue is a remote execution queue backed by two Redis streams: one the
// tasks flow into (consumed by workers) and one the outcome reports flow
// into (consumed by the driver). Both are served by the same consumer
// group so visibility/leasing comes from XREADGROUP's pending-entries list.
type Queue struct {
	name          string
	rdb           redis.UniversalClient
	registry      *task.Registry
	retry         Retry
	taskStream    string
	outcomeStream string
	group         string
	consumer      string
	leaseDuration time.Duration
	pendingMsgIDs map[core.ID]string
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithRetry overrides the publish retry policy.
func WithRetry(r Retry) Option { return func(q *Queue) { q.retry = r } }

// WithLeaseDuration sets how long a pulled task is invisible to other
// consumers before it is eligible for XAUTOCLAIM by a new one.
func WithLeaseDuration(d time.Duration) Option {
	return func(q *Queue) { q.leaseDuration = d }
}

// New builds a remote Queue named name, storing tasks and outcome reports
// on streams derived from name, using reg to decode pulled tasks.
func New(rdb redis.UniversalClient, name string, reg *task.Registry, opts ...Option) *Queue {
	q := &Queue{
		name:          name,
		rdb:           rdb,
		registry:      reg,
		retry:         DefaultRetry(),
		taskStream:    name + ":tasks",
		outcomeStream: name + ":outcomes",
		group:         name + ":workers",
		consumer:      uuid.NewString(),
		leaseDuration: 5 * time.Minute,
		pendingMsgIDs: make(map[core.ID]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

// Purge deletes both backing streams. The consumer group is recreated
// lazily on the next PullTasks call.
func (q *Queue) Purge(ctx context.Context) error {
	return q.rdb.Del(ctx, q.taskStream, q.outcomeStream).Err()
}

// PushTasks appends one outcome-report callback to every task (mirroring
// the SQS queue's push_tasks), then XADDs each task's wire encoding to the
// task stream, retrying transient failures with exponential jitter.
func (q *Queue) PushTasks(ctx context.Context, tasks []*task.Task) error {
	for _, t := range tasks {
		t.Callbacks = append(t.Callbacks, task.CallbackRef{Name: reportOutcomeCallbackName})
	}
	for _, t := range tasks {
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal task %s: %w", t.ID, err)
		}
		if err := q.publish(ctx, q.taskStream, payload); err != nil {
			return fmt.Errorf("push task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (q *Queue) publish(ctx context.Context, stream string, payload []byte) error {
	backoff := retry.NewExponential(q.retry.DelayStart)
	backoff = retry.WithCappedDuration(q.retry.DelayMax, backoff)
	backoff = retry.WithJitter(50*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(q.retry.MaxRetries, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := q.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{fieldPayload: payload},
		}).Err()
		if err != nil {
			logger.FromContext(ctx).Warn("publish failed, will retry", "stream", stream, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// PullTasks leases up to maxNum pending tasks for the queue's lease
// duration, decoding each against the shared registry. It ensures the
// consumer group exists on first use.
func (q *Queue) PullTasks(ctx context.Context, maxNum int) ([]*task.Task, error) {
	if maxNum <= 0 {
		return nil, nil
	}
	if err := q.ensureGroup(ctx, q.taskStream); err != nil {
		return nil, err
	}
	msgs, err := q.readGroup(ctx, q.taskStream, maxNum)
	if err != nil {
		return nil, err
	}
	tasks := make([]*task.Task, 0, len(msgs))
	for _, m := range msgs {
		var t task.Task
		if err := json.Unmarshal([]byte(payloadOf(m)), &t); err != nil {
			logger.FromContext(ctx).Error("dropping undecodable task message", "stream", q.taskStream, "id", m.ID, "error", err)
			_ = q.rdb.XAck(ctx, q.taskStream, q.group, m.ID).Err()
			continue
		}
		q.pendingMsgIDs[t.ID] = m.ID
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// Ack acknowledges a task pulled by a prior PullTasks call, removing it
// from the consumer group's pending-entries list. Workers call this once a
// task's outcome has been durably reported, win or lose; a task never
// acked is reclaimed by XAutoClaim once its lease expires.
func (q *Queue) Ack(ctx context.Context, id core.ID) error {
	msgID, ok := q.pendingMsgIDs[id]
	if !ok {
		return fmt.Errorf("ack %s: no pending message recorded for this consumer", id)
	}
	delete(q.pendingMsgIDs, id)
	return q.rdb.XAck(ctx, q.taskStream, q.group, msgID).Err()
}

// PullTaskOutcomes reads outcome reports off the outcome stream, up to
// maxNum or until maxTime elapses, acking each as it is decoded.
func (q *Queue) PullTaskOutcomes(ctx context.Context, maxNum int, maxTime time.Duration) (map[core.ID]task.Outcome, error) {
	if err := q.ensureGroup(ctx, q.outcomeStream); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, maxTime)
	defer cancel()

	msgs, err := q.readGroup(ctx, q.outcomeStream, maxNum)
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	result := make(map[core.ID]task.Outcome, len(msgs))
	for _, m := range msgs {
		var report outcomeReport
		if err := json.Unmarshal([]byte(payloadOf(m)), &report); err != nil {
			logger.FromContext(ctx).Error("dropping undecodable outcome message", "id", m.ID, "error", err)
			_ = q.rdb.XAck(ctx, q.outcomeStream, q.group, m.ID).Err()
			continue
		}
		result[report.TaskID] = report.Outcome
		_ = q.rdb.XAck(ctx, q.outcomeStream, q.group, m.ID).Err()
	}
	return result, nil
}

func (q *Queue) ensureGroup(ctx context.Context, stream string) error {
	err := q.rdb.XGroupCreateMkStream(ctx, stream, q.group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create consumer group on %s: %w", stream, err)
	}
	return nil
}

func (q *Queue) readGroup(ctx context.Context, stream string, maxNum int) ([]redis.XMessage, error) {
	// Reclaim anything past its lease before asking for new messages, so a
	// crashed consumer's work is not stranded forever.
	claimed, _, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.leaseDuration,
		Start:    "0",
		Count:    int64(maxNum),
	}).Result()
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("autoclaim on %s: %w", stream, err)
	}
	if len(claimed) >= maxNum {
		return claimed[:maxNum], nil
	}

	// Wait for new messages only until ctx's deadline; without a deadline,
	// return at once with whatever is available (a negative Block sends no
	// BLOCK argument, whereas Block 0 would wait forever).
	block := time.Duration(-1)
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d >= time.Millisecond {
			block = d
		}
	}
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(maxNum - len(claimed)),
		Block:    block,
	}).Result()
	if err != nil && err != redis.Nil && ctx.Err() == nil {
		return nil, fmt.Errorf("readgroup on %s: %w", stream, err)
	}
	if len(streams) == 1 {
		claimed = append(claimed, streams[0].Messages...)
	}
	return claimed, nil
}

func payloadOf(m redis.XMessage) string {
	v, _ := m.Values[fieldPayload].(string)
	return v
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

type outcomeReport struct {
	TaskID  core.ID      `json:"task_id"`
	Outcome task.Outcome `json:"outcome"`
}

const reportOutcomeCallbackName = "redistransport.report_outcome"

// RegisterCallback wires the outcome-report callback into reg: every task
// pushed through a Queue gets this callback appended, and it is this
// function that actually publishes the report. Call it once per registry
// that will execute tasks pulled from a Queue. Task.Invoke does not thread
// a context through to callbacks, so the publish itself runs against a
// background context; the retry policy still bounds how long it can run.
func RegisterCallback(reg *task.Registry, rdb redis.UniversalClient, name string) {
	q := New(rdb, name, reg)
	reg.RegisterCallback(reportOutcomeCallbackName, func(t *task.Task, _ json.RawMessage) error {
		report := outcomeReport{TaskID: t.ID, Outcome: t.Outcome}
		payload, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal outcome report for %s: %w", t.ID, err)
		}
		return q.publish(context.Background(), q.outcomeStream, payload)
	})
}
