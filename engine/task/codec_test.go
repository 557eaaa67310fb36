package task

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_JSONRoundTrip(t *testing.T) {
	t.Run("Should preserve id, func name, kwargs, env, and callbacks", func(t *testing.T) {
		reg := NewRegistry()
		factory := NewFactory(reg, "add", func(_ context.Context, k addKwargs) (any, error) {
			return k.A + k.B, nil
		})
		original, err := factory.Make(addKwargs{A: 1, B: 2}, NewExecutionEnv("image:latest", "cpu"))
		require.NoError(t, err)
		original.Callbacks = []CallbackRef{{Name: "report", Config: json.RawMessage(`{"x":1}`)}}

		raw, err := json.Marshal(original)
		require.NoError(t, err)

		var roundTripped Task
		require.NoError(t, json.Unmarshal(raw, &roundTripped))

		assert.Equal(t, original.ID, roundTripped.ID)
		assert.Equal(t, original.FuncName, roundTripped.FuncName)
		assert.JSONEq(t, string(original.KwargsJSON), string(roundTripped.KwargsJSON))
		assert.ElementsMatch(t, original.Env.TagSlice(), roundTripped.Env.TagSlice())
		assert.Equal(t, original.Env.DockerImage, roundTripped.Env.DockerImage)
		assert.Equal(t, original.Callbacks, roundTripped.Callbacks)
		assert.Equal(t, NotSubmitted, roundTripped.Outcome.Status)
	})

	t.Run("Should produce a task that yields the same outcome when invoked", func(t *testing.T) {
		reg := NewRegistry()
		factory := NewFactory(reg, "add", func(_ context.Context, k addKwargs) (any, error) {
			return k.A + k.B, nil
		})
		original, err := factory.Make(addKwargs{A: 4, B: 5}, ExecutionEnv{})
		require.NoError(t, err)

		raw, err := json.Marshal(original)
		require.NoError(t, err)
		var roundTripped Task
		require.NoError(t, json.Unmarshal(raw, &roundTripped))

		want := original.Invoke(context.Background(), reg)
		got := roundTripped.Invoke(context.Background(), reg)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.ReturnValue, got.ReturnValue)
	})
}

func TestOutcome_JSONRoundTrip(t *testing.T) {
	t.Run("Should preserve status, execution time, and return value on success", func(t *testing.T) {
		original := Outcome{Status: Succeeded, ExecutionTime: 250 * time.Millisecond, ReturnValue: float64(42)}

		raw, err := json.Marshal(original)
		require.NoError(t, err)
		var roundTripped Outcome
		require.NoError(t, json.Unmarshal(raw, &roundTripped))

		assert.Equal(t, original.Status, roundTripped.Status)
		assert.Equal(t, original.ExecutionTime, roundTripped.ExecutionTime)
		assert.Equal(t, original.ReturnValue, roundTripped.ReturnValue)
		assert.Nil(t, roundTripped.Failure)
	})

	t.Run("Should preserve the failure message as a string on failure", func(t *testing.T) {
		original := Outcome{Status: Failed, Failure: errors.New("disk full")}

		raw, err := json.Marshal(original)
		require.NoError(t, err)
		var roundTripped Outcome
		require.NoError(t, json.Unmarshal(raw, &roundTripped))

		assert.Equal(t, Failed, roundTripped.Status)
		require.Error(t, roundTripped.Failure)
		assert.Equal(t, "disk full", roundTripped.Failure.Error())
	})
}
