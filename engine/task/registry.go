package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fn is a task body resolved by name from a Registry. It receives the raw
// JSON-encoded kwargs the task was created with; Go closures cannot cross
// a process boundary the way the original Python callables could, so a
// name+kwargs registry (in the spirit of a Temporal activity registry)
// stands in for "any bound callable" here.
type Fn func(ctx context.Context, kwargsJSON json.RawMessage) (any, error)

// CallbackFn is a completion callback resolved by name from a Registry. It
// receives the task after its body has run (or failed) and any config the
// callback was registered with.
type CallbackFn func(t *Task, cfg json.RawMessage) error

// Registry binds function names to task bodies and completion callbacks.
// A single process-wide Registry is typically shared between the flows
// that create tasks and the worker(s) that execute them.
type Registry struct {
	mu        sync.RWMutex
	fns       map[string]Fn
	callbacks map[string]CallbackFn
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		fns:       make(map[string]Fn),
		callbacks: make(map[string]CallbackFn),
	}
}

// RegisterFn registers a named task body. Re-registering the same name
// overwrites the previous binding, matching how most activity registries
// behave under hot-reload.
func (r *Registry) RegisterFn(name string, fn Fn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
}

// RegisterCallback registers a named completion callback.
func (r *Registry) RegisterCallback(name string, fn CallbackFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[name] = fn
}

func (r *Registry) lookupFn(name string) (Fn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

func (r *Registry) lookupCallback(name string) (CallbackFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.callbacks[name]
	return fn, ok
}

// ErrFuncNotRegistered is returned when a task references a function name
// the registry has no binding for.
type ErrFuncNotRegistered struct{ Name string }

func (e *ErrFuncNotRegistered) Error() string {
	return fmt.Sprintf("task: function %q is not registered", e.Name)
}
