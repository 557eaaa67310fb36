// Package execution implements the dependency-tracking, lazy-expansion
// engine: the in-memory tree of ongoing flows, their parent/child graph,
// per-node outstanding dependencies, and the completed-ID set. It answers
// "which tasks are ready now?" and absorbs task outcomes as they arrive.
package execution

import (
	"context"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/engine/flow"
	"github.com/flowrunner/flowrunner/engine/task"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

// State is the in-memory execution tree described by spec §3-4.1. It is
// not concurrency-safe: only the driver goroutine may touch it.
type State struct {
	ongoingFlows            map[core.ID]*flow.Flow
	ongoingOrder            []core.ID
	ongoingExhaustedFlowIDs map[core.ID]struct{}
	ongoingTasks            map[core.ID]*task.Task
	ongoingParentMap        map[core.ID]core.ID
	ongoingChildrenMap      map[core.ID]map[core.ID]struct{}
	dependencyMap           map[core.ID]map[core.ID]struct{}
	completedIDs            map[core.ID]struct{}
}

// New builds a State over the given root flows (no parent), optionally
// seeded with IDs that a prior run already completed.
func New(roots []*flow.Flow, completedIDs ...core.ID) *State {
	s := &State{
		ongoingFlows:            make(map[core.ID]*flow.Flow),
		ongoingExhaustedFlowIDs: make(map[core.ID]struct{}),
		ongoingTasks:            make(map[core.ID]*task.Task),
		ongoingParentMap:        make(map[core.ID]core.ID),
		ongoingChildrenMap:      make(map[core.ID]map[core.ID]struct{}),
		dependencyMap:           make(map[core.ID]map[core.ID]struct{}),
		completedIDs:            make(map[core.ID]struct{}, len(completedIDs)),
	}
	for _, id := range completedIDs {
		s.completedIDs[id] = struct{}{}
	}
	for _, f := range roots {
		s.insertFlow(f)
	}
	return s
}

// OngoingFlowIDs returns a snapshot of flow IDs not yet completed, in
// insertion order. It exists solely for the driver's termination check.
func (s *State) OngoingFlowIDs() []core.ID {
	out := make([]core.ID, 0, len(s.ongoingFlows))
	for _, id := range s.ongoingOrder {
		if _, ok := s.ongoingFlows[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// GetTaskBatch advances ongoing flows until either every flow is blocked
// (empty dependency set required, none exhausted) or maxBatchLen is
// reached. The cap is soft: an atomic yield from a single flow is never
// split across two batches, so the result can briefly exceed maxBatchLen.
// maxBatchLen <= 0 returns an empty batch without mutating state.
func (s *State) GetTaskBatch(ctx context.Context, maxBatchLen int) ([]*task.Task, error) {
	var result []*task.Task
	snapshot := append([]core.ID(nil), s.ongoingOrder...)

	for _, id := range snapshot {
		f, ok := s.ongoingFlows[id]
		for ok &&
			len(s.dependencyMap[id]) == 0 &&
			len(result) < maxBatchLen &&
			!s.isExhausted(id) {
			batch, err := s.expand(ctx, f)
			if err != nil {
				return nil, err
			}
			result = append(result, batch...)
			f, ok = s.ongoingFlows[id]
		}
		if len(result) >= maxBatchLen {
			break
		}
	}

	for _, t := range result {
		s.ongoingTasks[t.ID] = t
	}
	return result, nil
}

// UpdateWithTaskOutcomes feeds reported outcomes back into the state. A
// FAILED outcome is fatal: it is returned immediately and no further
// entries from outcomes are applied. SUCCEEDED outcomes for unknown task
// IDs (already completed, or from a duplicate/late delivery) are silently
// ignored.
func (s *State) UpdateWithTaskOutcomes(ctx context.Context, outcomes map[core.ID]task.Outcome) error {
	log := logger.FromContext(ctx)
	for id, outcome := range outcomes {
		if outcome.Status == task.Failed {
			err := outcome.Failure
			if err == nil {
				err = &missingFailureDescriptor{TaskID: id}
			}
			return &TaskFailureError{TaskID: id, Err: err}
		}
		if outcome.Status != task.Succeeded {
			continue
		}
		t, known := s.ongoingTasks[id]
		if !known {
			log.Debug("ignoring outcome for unknown task", "task_id", id.String())
			continue
		}
		t.Outcome = outcome
		s.completeID(id)
	}
	return nil
}

func (s *State) isExhausted(id core.ID) bool {
	_, ok := s.ongoingExhaustedFlowIDs[id]
	return ok
}

func (s *State) expand(ctx context.Context, f *flow.Flow) ([]*task.Task, error) {
	step, err := f.GetNextBatch()
	if err != nil {
		return nil, err
	}

	switch {
	case step.Done:
		s.markExhausted(f.ID)
		return nil, nil
	case step.Dependency != nil:
		return nil, s.addDependency(f.ID, *step.Dependency)
	default:
		return s.addChildren(ctx, f.ID, step.Children)
	}
}

func (s *State) addDependency(flowID core.ID, dep flow.Dependency) error {
	s.ensureMaps(flowID)
	if dep.IsBarrier() {
		for childID := range s.ongoingChildrenMap[flowID] {
			s.dependencyMap[flowID][childID] = struct{}{}
		}
		return nil
	}
	for _, id := range dep.IDs() {
		if _, done := s.completedIDs[id]; done {
			continue
		}
		if _, isChild := s.ongoingChildrenMap[flowID][id]; !isChild {
			return &GraphViolationError{FlowID: flowID, DepID: id}
		}
		s.dependencyMap[flowID][id] = struct{}{}
	}
	return nil
}

func (s *State) addChildren(ctx context.Context, flowID core.ID, children []flow.Child) ([]*task.Task, error) {
	s.ensureMaps(flowID)
	log := logger.FromContext(ctx)
	var ready []*task.Task
	for _, c := range children {
		id := c.ID()
		if _, done := s.completedIDs[id]; done {
			continue
		}
		s.ongoingChildrenMap[flowID][id] = struct{}{}
		s.ongoingParentMap[id] = flowID
		switch c.Kind {
		case flow.ChildFlow:
			log.Debug("flow spawned sub-flow", "flow_id", flowID.String(), "child_flow_id", id.String())
			s.insertFlow(c.Flow)
		case flow.ChildTask:
			ready = append(ready, c.Task)
		}
	}
	return ready, nil
}

func (s *State) markExhausted(id core.ID) {
	s.ensureMaps(id)
	s.ongoingExhaustedFlowIDs[id] = struct{}{}
	for childID := range s.ongoingChildrenMap[id] {
		s.dependencyMap[id][childID] = struct{}{}
	}
	if len(s.dependencyMap[id]) == 0 {
		s.completeID(id)
	}
}

// completeID marks id completed and cascades up through the parent chain
// while each ancestor is itself exhausted and newly unblocked. Written as
// an explicit loop (not recursion) so arbitrarily deep nesting never
// threatens the stack.
func (s *State) completeID(id core.ID) {
	for {
		s.completedIDs[id] = struct{}{}
		delete(s.ongoingExhaustedFlowIDs, id)
		delete(s.ongoingFlows, id)
		delete(s.ongoingTasks, id)

		parentID, hasParent := s.ongoingParentMap[id]
		delete(s.ongoingParentMap, id)
		if !hasParent {
			return
		}
		delete(s.ongoingChildrenMap[parentID], id)
		delete(s.dependencyMap[parentID], id)

		if _, exhausted := s.ongoingExhaustedFlowIDs[parentID]; exhausted && len(s.dependencyMap[parentID]) == 0 {
			id = parentID
			continue
		}
		return
	}
}

func (s *State) insertFlow(f *flow.Flow) {
	s.ongoingFlows[f.ID] = f
	s.ongoingOrder = append(s.ongoingOrder, f.ID)
	s.ensureMaps(f.ID)
}

func (s *State) ensureMaps(id core.ID) {
	if _, ok := s.ongoingChildrenMap[id]; !ok {
		s.ongoingChildrenMap[id] = make(map[core.ID]struct{})
	}
	if _, ok := s.dependencyMap[id]; !ok {
		s.dependencyMap[id] = make(map[core.ID]struct{})
	}
}

type missingFailureDescriptor struct{ TaskID core.ID }

func (e *missingFailureDescriptor) Error() string {
	return "task outcome of '" + e.TaskID.String() + "' indicated failure without a failure descriptor"
}
