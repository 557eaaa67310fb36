package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowrunner/flowrunner/engine/core"
)

// Factory wraps a typed function as a task body, registering it under a
// stable name so tasks created from it can be serialized, shipped to a
// remote worker, and re-resolved there. It is the Go analogue of mazepa's
// `task_factory` decorator.
type Factory[K any] struct {
	name string
	reg  *Registry
}

// NewFactory registers fn under name in reg and returns a Factory that
// builds tasks bound to a kwargs value of type K.
func NewFactory[K any](reg *Registry, name string, fn func(ctx context.Context, kwargs K) (any, error)) *Factory[K] {
	reg.RegisterFn(name, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var kwargs K
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &kwargs); err != nil {
				return nil, fmt.Errorf("task %q: decode kwargs: %w", name, err)
			}
		}
		return fn(ctx, kwargs)
	})
	return &Factory[K]{name: name, reg: reg}
}

// Make creates a fresh Task bound to kwargs, with a freshly generated ID
// and the given execution-environment override.
func (f *Factory[K]) Make(kwargs K, env ExecutionEnv) (*Task, error) {
	raw, err := json.Marshal(kwargs)
	if err != nil {
		return nil, fmt.Errorf("task %q: encode kwargs: %w", f.name, err)
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:         id,
		FuncName:   f.name,
		KwargsJSON: raw,
		Env:        env,
		Outcome:    NotSubmittedOutcome(),
	}, nil
}

// MustMake is Make but panics on error; handy in flow bodies where kwargs
// encoding failures indicate a programming error, not a runtime one.
func (f *Factory[K]) MustMake(kwargs K, env ExecutionEnv) *Task {
	t, err := f.Make(kwargs, env)
	if err != nil {
		panic(err)
	}
	return t
}
