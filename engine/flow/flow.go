// Package flow implements the lazily-advancing producer of task batches,
// sub-flows, and dependency directives that the execution state expands on
// demand.
//
// Go has no generator coroutines, so a flow's body runs on its own
// goroutine and rendezvous with the consumer on a pair of unbuffered
// channels: exactly one yield crosses per GetNextBatch call, mirroring the
// suspend-on-yield semantics of mazepa's Python generator-backed jobs (see
// DESIGN.md).
package flow

import (
	"context"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/task"
)

// Step is the normalized result of advancing a flow by one step: either
// the exhausted sentinel (Done), a Dependency directive, or an ordered,
// possibly heterogeneous list of children.
type Step struct {
	Done       bool
	Dependency *Dependency
	Children   []Child
}

// Emitter is handed to a flow's Body and is the only way the body
// communicates yields back to the consumer driving GetNextBatch.
type Emitter struct {
	out    chan Step
	resume chan struct{}
}

// Yield emits an ordered batch of children (tasks and/or sub-flows) and
// blocks until the consumer requests the next step.
func (e *Emitter) Yield(children ...Child) {
	e.emit(Step{Children: children})
}

// Barrier emits a barrier dependency directive.
func (e *Emitter) Barrier() {
	d := Barrier()
	e.emit(Step{Dependency: &d})
}

// DependsOn emits an explicit dependency directive.
func (e *Emitter) DependsOn(ids ...core.ID) {
	d := On(ids...)
	e.emit(Step{Dependency: &d})
}

func (e *Emitter) emit(s Step) {
	e.out <- s
	<-e.resume
}

// Body is a flow's user-authored generator function. It returns when the
// flow has no more work to yield; a non-nil error is surfaced by
// GetNextBatch alongside the Done step.
type Body func(ctx context.Context, e *Emitter) error

// Flow is a one-shot, stateful, lazy producer of batches. Calling
// GetNextBatch advances it by exactly one step.
type Flow struct {
	ID  core.ID
	Env task.ExecutionEnv

	ctx     context.Context
	body    Body
	out     chan Step
	resume  chan struct{}
	doneErr chan error

	started  bool
	finished bool
	lastErr  error
}

// New builds a Flow bound to body with a caller-supplied ID. Most callers
// should go through a Factory instead so IDs are generated consistently.
func New(ctx context.Context, id core.ID, body Body) *Flow {
	return &Flow{
		ID:      id,
		ctx:     ctx,
		body:    body,
		out:     make(chan Step),
		resume:  make(chan struct{}),
		doneErr: make(chan error, 1),
	}
}

// GetNextBatch advances the flow exactly one step and normalizes the yield
// per the flow's execution-env override. It is safe to keep calling this
// after the flow reports Done; it keeps returning the same terminal result.
func (f *Flow) GetNextBatch() (Step, error) {
	if f.finished {
		return Step{Done: true}, f.lastErr
	}
	if !f.started {
		f.started = true
		go f.run()
	} else {
		f.resume <- struct{}{}
	}

	step, ok := <-f.out
	if !ok {
		err := <-f.doneErr
		f.finished = true
		f.lastErr = err
		return Step{Done: true}, err
	}
	if !f.Env.IsZero() {
		for i := range step.Children {
			step.Children[i] = step.Children[i].stampEnv(f.Env)
		}
	}
	return step, nil
}

func (f *Flow) run() {
	e := &Emitter{out: f.out, resume: f.resume}
	err := f.body(f.ctx, e)
	close(f.out)
	f.doneErr <- err
}
