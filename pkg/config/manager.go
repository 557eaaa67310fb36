package config

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/flowrunner/flowrunner/pkg/logger"
)

// Manager owns the current Config and applies provider layers on Load,
// storing the result atomically so Get is safe to call from any goroutine,
// including while another Load is running.
type Manager struct {
	Service  Service
	current  atomic.Pointer[Config]
	debounce time.Duration
	cancel   context.CancelFunc
}

// Service supplies Manager its starting point and validation. Most callers
// pass nil to NewManager and get the default Service, which just returns
// Default() and performs no validation beyond the koanf unmarshal itself.
type Service interface {
	Default() *Config
	Validate(*Config) error
}

type defaultService struct{}

// NewService returns the default Service: Default() as the base, no extra
// validation.
func NewService() Service { return defaultService{} }

func (defaultService) Default() *Config      { return Default() }
func (defaultService) Validate(*Config) error { return nil }

// NewManager builds a Manager bound to svc. A nil svc uses NewService().
func NewManager(svc Service) *Manager {
	if svc == nil {
		svc = NewService()
	}
	return &Manager{Service: svc, debounce: 100 * time.Millisecond}
}

// SetDebounce records a debounce duration on the Manager. Manager never
// calls a Provider's Watch and never re-runs Load by itself, so nothing
// reads this value during Load.
func (m *Manager) SetDebounce(d time.Duration) { m.debounce = d }

// Load applies each provider in order on top of Service.Default(), then
// unmarshals the merged tree into a Config, validates it, and stores it.
func (m *Manager) Load(ctx context.Context, providers ...Provider) (*Config, error) {
	k := koanf.New(".")
	base := m.Service.Default()
	if err := k.Load(structsProvider(base), nil); err != nil {
		return nil, fmt.Errorf("config: load base: %w", err)
	}

	for _, p := range providers {
		if ep, ok := p.(envProvider); ok {
			if err := k.Load(ep.koanfProvider(), nil); err != nil {
				return nil, fmt.Errorf("config: load %s layer: %w", p.Type(), err)
			}
			continue
		}
		values, err := p.Load()
		if err != nil {
			return nil, fmt.Errorf("config: load %s layer: %w", p.Type(), err)
		}
		if len(values) == 0 {
			continue
		}
		if err := k.Load(mapProvider(values), nil); err != nil {
			return nil, fmt.Errorf("config: merge %s layer: %w", p.Type(), err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := m.Service.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	m.current.Store(cfg)
	logger.FromContext(ctx).Debug("configuration loaded", "queue", cfg.Queue)
	return cfg, nil
}

// Get returns the most recently loaded Config, or nil if Load has never
// been called.
func (m *Manager) Get() *Config { return m.current.Load() }

// Close calls the Manager's cancel function when one is set. Load starts
// no background goroutine, so for a Manager built by NewManager this does
// nothing.
func (m *Manager) Close(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}
