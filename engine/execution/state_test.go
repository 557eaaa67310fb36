package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/flow"
	"github.com/flowrunner/flowrunner/engine/task"
)

func newLeafTask(t *testing.T) *task.Task {
	t.Helper()
	return &task.Task{ID: core.MustNewID(), FuncName: "noop", Outcome: task.NotSubmittedOutcome()}
}

// yieldStep and friends build a fixed, pre-scripted flow body -- the Go
// analogue of the Python tests' `Job(fn=iter, args=[[...]])` fixture jobs,
// since a Go flow body cannot be handed a literal list of pre-built yields
// the way a Python generator can be driven by `iter`.
type recordedStep struct {
	children []flow.Child
	dep      *flow.Dependency
}

func yieldStep(children ...flow.Child) recordedStep { return recordedStep{children: children} }

func barrierStep() recordedStep {
	d := flow.Barrier()
	return recordedStep{dep: &d}
}

func dependsOnStep(ids ...core.ID) recordedStep {
	d := flow.On(ids...)
	return recordedStep{dep: &d}
}

func scriptedFlow(ctx context.Context, id core.ID, steps ...recordedStep) *flow.Flow {
	body := func(_ context.Context, e *flow.Emitter) error {
		for _, s := range steps {
			switch {
			case s.dep != nil && s.dep.IsBarrier():
				e.Barrier()
			case s.dep != nil:
				e.DependsOn(s.dep.IDs()...)
			default:
				e.Yield(s.children...)
			}
		}
		return nil
	}
	return flow.New(ctx, id, body)
}

func batchIDs(tasks []*task.Task) []core.ID {
	ids := make([]core.ID, len(tasks))
	for i, tk := range tasks {
		ids[i] = tk.ID
	}
	return ids
}

func succeed(id core.ID) task.Outcome { return task.Outcome{Status: task.Succeeded} }

func outcomesFor(ids ...core.ID) map[core.ID]task.Outcome {
	out := make(map[core.ID]task.Outcome, len(ids))
	for _, id := range ids {
		out[id] = succeed(id)
	}
	return out
}

func TestState_GetTaskBatch_ThreeIndependentTasks(t *testing.T) {
	ctx := context.Background()
	build := func(t *testing.T) (*State, *task.Task, *task.Task, *task.Task, core.ID) {
		a, b, c := newLeafTask(t), newLeafTask(t), newLeafTask(t)
		jobID := core.MustNewID()
		fl := scriptedFlow(ctx, jobID, yieldStep(flow.OfTask(a)), yieldStep(flow.OfTask(b)), yieldStep(flow.OfTask(c)))
		s := New([]*flow.Flow{fl})
		return s, a, b, c, jobID
	}

	t.Run("Should batch all three with no dependencies and deliver nothing", func(t *testing.T) {
		s, a, b, c, jobID := build(t)
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{a.ID, b.ID, c.ID}, batchIDs(batch))

		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, map[core.ID]task.Outcome{}))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())
	})

	t.Run("Should remain ongoing after only two of three complete", func(t *testing.T) {
		s, a, b, _, jobID := build(t)
		_, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)

		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID, b.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())
	})

	t.Run("Should complete the flow once all three complete", func(t *testing.T) {
		s, a, b, c, _ := build(t)
		_, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)

		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID, b.ID, c.ID)))
		assert.Empty(t, s.OngoingFlowIDs())
	})

	t.Run("Should cap the batch at maxBatchLen", func(t *testing.T) {
		s, a, _, _, jobID := build(t)
		batch, err := s.GetTaskBatch(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{a.ID}, batchIDs(batch))

		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())
	})
}

func TestState_GetTaskBatch_BarrierBeforeDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("Should resolve a and b across two calls when a completes right away", func(t *testing.T) {
		a, b := newLeafTask(t), newLeafTask(t)
		jobID := core.MustNewID()
		fl := scriptedFlow(ctx, jobID, yieldStep(flow.OfTask(a)), barrierStep(), yieldStep(flow.OfTask(b)))
		s := New([]*flow.Flow{fl})

		batch1, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{a.ID}, batchIDs(batch1))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())

		batch2, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{b.ID}, batchIDs(batch2))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(b.ID)))
		assert.Empty(t, s.OngoingFlowIDs())
	})

	t.Run("Should surface an extra empty batch when b's completion is deferred", func(t *testing.T) {
		a, b := newLeafTask(t), newLeafTask(t)
		jobID := core.MustNewID()
		fl := scriptedFlow(ctx, jobID, yieldStep(flow.OfTask(a)), barrierStep(), yieldStep(flow.OfTask(b)))
		s := New([]*flow.Flow{fl})

		batch1, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{a.ID}, batchIDs(batch1))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())

		batch2, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{b.ID}, batchIDs(batch2))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, map[core.ID]task.Outcome{}))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())

		batch3, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, batch3)
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(b.ID)))
		assert.Empty(t, s.OngoingFlowIDs())
	})
}

func TestState_GetTaskBatch_MultiChildYieldWithExplicitDependency(t *testing.T) {
	ctx := context.Background()
	a, b, c, d := newLeafTask(t), newLeafTask(t), newLeafTask(t), newLeafTask(t)
	jobID := core.MustNewID()
	fl := scriptedFlow(ctx, jobID,
		yieldStep(flow.OfTask(a), flow.OfTask(b), flow.OfTask(c)),
		dependsOnStep(a.ID),
		yieldStep(flow.OfTask(d)),
	)
	s := New([]*flow.Flow{fl})

	t.Run("Should yield a, b, c together then block on a", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{a.ID, b.ID, c.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(b.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())
	})

	t.Run("Should stay blocked until a completes", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, batch)
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(a.ID)))
		assert.Equal(t, []core.ID{jobID}, s.OngoingFlowIDs())
	})

	t.Run("Should yield d once unblocked and finish once c and d complete", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{d.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(c.ID, d.ID)))
		assert.Empty(t, s.OngoingFlowIDs())
	})
}

func TestState_GetTaskBatch_NestedSubFlow(t *testing.T) {
	ctx := context.Background()
	a, b := newLeafTask(t), newLeafTask(t)
	x, y, z := newLeafTask(t), newLeafTask(t), newLeafTask(t)

	job0ID := core.MustNewID()
	job1ID := core.MustNewID()
	job1 := scriptedFlow(ctx, job1ID,
		yieldStep(flow.OfTask(x), flow.OfTask(y)),
		dependsOnStep(x.ID),
		yieldStep(flow.OfTask(z)),
	)
	job0 := scriptedFlow(ctx, job0ID,
		yieldStep(flow.OfFlow(job1), flow.OfTask(a)),
		dependsOnStep(a.ID),
		yieldStep(flow.OfTask(b)),
	)
	s := New([]*flow.Flow{job0})

	// A sub-flow discovered mid-expansion is not serviced within the same
	// GetTaskBatch call that discovers it -- only starting the next call.
	// This is the behavior the nested scenario exists to pin down.
	t.Run("Call 1: should yield only a, job_1 not serviced yet", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{a.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, map[core.ID]task.Outcome{}))
		assert.ElementsMatch(t, []core.ID{job0ID, job1ID}, s.OngoingFlowIDs())
	})

	t.Run("Call 2: should yield x and y from the now-discovered job_1", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []core.ID{x.ID, y.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(y.ID, a.ID)))
		assert.ElementsMatch(t, []core.ID{job0ID, job1ID}, s.OngoingFlowIDs())
	})

	t.Run("Call 3: should yield b from job_0, job_1 still blocked on x", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{b.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(x.ID)))
		assert.ElementsMatch(t, []core.ID{job0ID, job1ID}, s.OngoingFlowIDs())
	})

	t.Run("Call 4: should yield z and, once delivered, finish job_1 but leave job_0 blocked on b", func(t *testing.T) {
		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{z.ID}, batchIDs(batch))
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(z.ID)))
		assert.Equal(t, []core.ID{job0ID}, s.OngoingFlowIDs())
	})
}

func TestState_UpdateWithTaskOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("Should replace the task's outcome slot exactly with the delivered outcome", func(t *testing.T) {
		a := newLeafTask(t)
		fl := scriptedFlow(ctx, core.MustNewID(), yieldStep(flow.OfTask(a)))
		s := New([]*flow.Flow{fl})
		_, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)

		outcome := task.Outcome{Status: task.Succeeded, ReturnValue: 5566}
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, map[core.ID]task.Outcome{a.ID: outcome}))
		assert.Equal(t, outcome, a.Outcome)
	})

	t.Run("Should raise a TaskFailureError naming the task on a Failed status", func(t *testing.T) {
		a := newLeafTask(t)
		fl := scriptedFlow(ctx, core.MustNewID(), yieldStep(flow.OfTask(a)))
		s := New([]*flow.Flow{fl})
		_, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)

		err = s.UpdateWithTaskOutcomes(ctx, map[core.ID]task.Outcome{a.ID: {Status: task.Failed}})
		require.Error(t, err)
		var failure *TaskFailureError
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, a.ID, failure.TaskID)
	})

	t.Run("Should ignore a Succeeded outcome for an unknown task ID", func(t *testing.T) {
		s := New(nil)
		require.NoError(t, s.UpdateWithTaskOutcomes(ctx, outcomesFor(core.MustNewID())))
	})
}

func TestState_GetTaskBatch_GraphViolation(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail when a flow depends on an ID that is neither its child nor completed", func(t *testing.T) {
		stranger := core.MustNewID()
		fl := scriptedFlow(ctx, core.MustNewID(), dependsOnStep(stranger))
		s := New([]*flow.Flow{fl})

		_, err := s.GetTaskBatch(ctx, 10)
		require.Error(t, err)
		var violation *GraphViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, stranger, violation.DepID)
	})

	t.Run("Should allow an explicit dependency on an already-completed ID", func(t *testing.T) {
		alreadyDone := core.MustNewID()
		fl := scriptedFlow(ctx, core.MustNewID(), dependsOnStep(alreadyDone))
		s := New([]*flow.Flow{fl}, alreadyDone)

		batch, err := s.GetTaskBatch(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, batch)
	})
}
