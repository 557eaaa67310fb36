package flow

import "github.com/flowrunner/flowrunner/engine/core"

// Dependency is a flow's instruction to pause until specified children
// complete. A barrier waits for every child the flow has emitted so far
// that is still outstanding; an explicit dependency waits only for the
// listed IDs, which must all be children previously emitted by this same
// flow (or already completed).
type Dependency struct {
	barrier bool
	ids     []core.ID
}

// Barrier builds a dependency that blocks on every currently-ongoing child
// of the emitting flow.
func Barrier() Dependency {
	return Dependency{barrier: true}
}

// On builds an explicit dependency on the given child IDs.
func On(ids ...core.ID) Dependency {
	return Dependency{ids: ids}
}

// IsBarrier reports whether this is a barrier dependency.
func (d Dependency) IsBarrier() bool {
	return d.barrier
}

// IDs returns the explicit ID list; empty for a barrier dependency.
func (d Dependency) IDs() []core.ID {
	return d.ids
}
