package flow

import (
	"context"

	"github.com/flowrunner/flowrunner/engine/core"
)

// BodyFn is a flow body parameterized over a kwargs struct, the shape every
// flow factory invocation is bound to.
type BodyFn[K any] func(ctx context.Context, kwargs K, e *Emitter) error

// Factory is the flow analogue of mazepa's `job` decorator: invoking it
// creates a fresh Flow instance bound to the caller's kwargs and a fresh
// ID. Because Make takes a single typed kwargs value, there is no way to
// pass positional arguments to a flow factory invocation here -- the
// constraint the spec calls out is enforced structurally rather than by a
// runtime check.
type Factory[K any] struct {
	fn BodyFn[K]
}

// NewFactory wraps fn as a flow factory.
func NewFactory[K any](fn BodyFn[K]) *Factory[K] {
	return &Factory[K]{fn: fn}
}

// Make creates a fresh, not-yet-started Flow bound to kwargs.
func (f *Factory[K]) Make(ctx context.Context, kwargs K) (*Flow, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	body := func(ctx context.Context, e *Emitter) error {
		return f.fn(ctx, kwargs, e)
	}
	return New(ctx, id, body), nil
}

// MustMake is Make but panics on ID generation failure.
func (f *Factory[K]) MustMake(ctx context.Context, kwargs K) *Flow {
	fl, err := f.Make(ctx, kwargs)
	if err != nil {
		panic(err)
	}
	return fl
}
