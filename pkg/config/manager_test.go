package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Load(t *testing.T) {
	t.Run("Should load defaults when no env overrides are set", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		cfg, err := manager.Load(context.Background(), NewDefaultProvider())
		require.NoError(t, err)
		assert.Equal(t, Default().Driver.MaxBatchLen, cfg.Driver.MaxBatchLen)
		assert.Equal(t, "local", cfg.Queue)
	})

	t.Run("Should store the loaded config atomically and expose it via Get", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		assert.Nil(t, manager.Get())
		cfg, err := manager.Load(context.Background(), NewDefaultProvider())
		require.NoError(t, err)
		assert.Same(t, cfg, manager.Get())
	})

	t.Run("Should override defaults with environment variables", func(t *testing.T) {
		t.Setenv("FLOWRUNNER_QUEUE", "remote")
		manager := NewManager(nil)
		defer manager.Close(context.Background())

		cfg, err := manager.Load(context.Background(), NewDefaultProvider(), NewEnvProvider())
		require.NoError(t, err)
		assert.Equal(t, "remote", cfg.Queue)
	})
}

func TestManager_SetDebounce(t *testing.T) {
	t.Run("Should update the configured debounce duration", func(t *testing.T) {
		manager := NewManager(nil)
		defer manager.Close(context.Background())
		manager.SetDebounce(250 * time.Millisecond)
		assert.Equal(t, 250*time.Millisecond, manager.debounce)
	})
}
