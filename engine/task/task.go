package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

// CallbackRef is a completion callback bound to a task: a name resolved
// against a Registry, plus whatever small config that callback needs (e.g.
// which outcome stream to publish to). Callbacks run in registration order
// after the task's body returns or fails.
type CallbackRef struct {
	Name   string
	Config json.RawMessage
}

// Task is a leaf unit of work: a stable ID, a named body bound to
// JSON-encoded keyword arguments, an execution-environment tag set, an
// ordered list of completion callbacks, and a mutable outcome slot.
type Task struct {
	ID         core.ID
	FuncName   string
	KwargsJSON json.RawMessage
	Env        ExecutionEnv
	Callbacks  []CallbackRef
	Outcome    Outcome
}

// Invoke runs the task's body under a recover-wrapper, measures wall time,
// replaces the outcome slot exactly once, then runs every completion
// callback in order. Invocation is at-most-once per Task instance; callers
// that need retries must create a fresh Task.
func (t *Task) Invoke(ctx context.Context, reg *Registry) Outcome {
	log := logger.FromContext(ctx).With("task_id", t.ID.String(), "func", t.FuncName)
	start := time.Now()
	returnValue, err := t.runBody(ctx, reg)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("task failed", "error", err, "elapsed", elapsed)
		t.Outcome = Outcome{Status: Failed, Failure: err, ExecutionTime: elapsed}
	} else {
		log.Debug("task succeeded", "elapsed", elapsed)
		t.Outcome = Outcome{Status: Succeeded, ExecutionTime: elapsed, ReturnValue: returnValue}
	}

	t.runCallbacks(reg, log)
	return t.Outcome
}

func (t *Task) runBody(ctx context.Context, reg *Registry) (result any, err error) {
	fn, ok := reg.lookupFn(t.FuncName)
	if !ok {
		return nil, &ErrFuncNotRegistered{Name: t.FuncName}
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicToError(r)
		}
	}()
	return fn(ctx, t.KwargsJSON)
}

func (t *Task) runCallbacks(reg *Registry, log logger.Logger) {
	for _, ref := range t.Callbacks {
		cb, ok := reg.lookupCallback(ref.Name)
		if !ok {
			log.Error("completion callback not registered", "callback", ref.Name)
			continue
		}
		if err := cb(t, ref.Config); err != nil {
			log.Error("completion callback failed", "callback", ref.Name, "error", err)
		}
	}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}

// PanicError wraps a recovered panic value as an error, so a task body that
// panics still surfaces as an ordinary Failed outcome.
type PanicError struct{ Value any }

func (e *PanicError) Error() string {
	return "task panicked: " + formatPanicValue(e.Value)
}

func formatPanicValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-string panic value"
}
