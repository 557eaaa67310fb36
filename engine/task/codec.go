package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowrunner/flowrunner/engine/core"
)

func durationFromNS(ns int64) time.Duration { return time.Duration(ns) }

// wireTask is Task's on-the-wire shape. Because a Task's behavior is fully
// determined by FuncName + KwargsJSON against a shared Registry, this is a
// complete round-trip: Marshal/Unmarshal never touch the registry itself.
type wireTask struct {
	ID         core.ID         `json:"id"`
	FuncName   string          `json:"func_name"`
	KwargsJSON json.RawMessage `json:"kwargs"`
	Tags       []string        `json:"tags,omitempty"`
	Image      string          `json:"image,omitempty"`
	Callbacks  []CallbackRef   `json:"callbacks,omitempty"`
}

// MarshalJSON renders the task's wire shape: ID, func name, raw kwargs,
// execution env, and callback list. The outcome slot is deliberately
// excluded -- it is produced by execution, not carried across the wire
// going in.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTask{
		ID:         t.ID,
		FuncName:   t.FuncName,
		KwargsJSON: t.KwargsJSON,
		Tags:       t.Env.TagSlice(),
		Image:      t.Env.DockerImage,
		Callbacks:  t.Callbacks,
	})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}
	t.ID = w.ID
	t.FuncName = w.FuncName
	t.KwargsJSON = w.KwargsJSON
	t.Env = NewExecutionEnv(w.Image, w.Tags...)
	t.Callbacks = w.Callbacks
	t.Outcome = NotSubmittedOutcome()
	return nil
}

// wireOutcome is Outcome's on-the-wire shape. Failure is carried as its
// string rendering: the remote side only needs to know a task failed and
// why, not reconstruct the original Go error type.
type wireOutcome struct {
	Status        Status          `json:"status"`
	Failure       string          `json:"failure,omitempty"`
	ExecutionTime int64           `json:"execution_time_ns"`
	ReturnValue   json.RawMessage `json:"return_value,omitempty"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	w := wireOutcome{Status: o.Status, ExecutionTime: int64(o.ExecutionTime)}
	if o.Failure != nil {
		w.Failure = o.Failure.Error()
	}
	if o.ReturnValue != nil {
		raw, err := json.Marshal(o.ReturnValue)
		if err != nil {
			return nil, fmt.Errorf("marshal outcome return value: %w", err)
		}
		w.ReturnValue = raw
	}
	return json.Marshal(w)
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var w wireOutcome
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal outcome: %w", err)
	}
	o.Status = w.Status
	o.ExecutionTime = durationFromNS(w.ExecutionTime)
	if w.Failure != "" {
		o.Failure = errString(w.Failure)
	}
	if len(w.ReturnValue) > 0 {
		var v any
		if err := json.Unmarshal(w.ReturnValue, &v); err != nil {
			return fmt.Errorf("unmarshal outcome return value: %w", err)
		}
		o.ReturnValue = v
	}
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }
