package config

import (
	"context"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
)

// SourceType identifies where a Provider's values came from, mostly useful
// for logging which layer won a given key.
type SourceType string

const (
	SourceDefault SourceType = "default"
	SourceEnv     SourceType = "env"
)

// Provider is a single configuration layer. Manager.Load applies providers
// in order, each overriding whatever keys it sets on top of the last.
type Provider interface {
	Load() (map[string]any, error)
	Type() SourceType
	// Watch calls onChange whenever the underlying source changes. Most
	// providers have nothing to watch and return nil immediately.
	Watch(ctx context.Context, onChange func()) error
}

// defaultProvider loads Default() as a nested map via koanf's structs
// provider, making it behave like any other layer instead of being
// Manager's implicit fallback.
type defaultProvider struct{}

// NewDefaultProvider builds a Provider over Default().
func NewDefaultProvider() Provider { return defaultProvider{} }

func (defaultProvider) Load() (map[string]any, error) {
	return structs.Provider(Default(), "koanf").Read()
}

func (defaultProvider) Type() SourceType { return SourceDefault }

func (defaultProvider) Watch(context.Context, func()) error { return nil }

// envProvider loads nothing itself -- koanf's env provider reads
// environment variables directly during koanf.Load, so this Provider only
// carries the prefix/delimiter configuration through to Manager.Load.
type envProvider struct {
	prefix string
}

// NewEnvProvider builds a Provider that overlays environment variables
// prefixed with prefix (default "FLOWRUNNER_"). The prefix is stripped, the
// rest is lowercased, and its first "_" separates the section from the
// field, so FLOWRUNNER_DRIVER_MAX_BATCH_LEN sets driver.max_batch_len and
// FLOWRUNNER_QUEUE sets queue, matching the koanf struct tags in config.go.
func NewEnvProvider(prefix ...string) Provider {
	p := "FLOWRUNNER_"
	if len(prefix) > 0 && prefix[0] != "" {
		p = prefix[0]
	}
	return envProvider{prefix: p}
}

// Load returns an empty map: actual env reads happen inside Manager.Load
// via koanf's own env.Provider, which needs the live koanf.Koanf instance
// to know the delimiter and key transform.
func (envProvider) Load() (map[string]any, error) { return map[string]any{}, nil }

func (envProvider) Type() SourceType { return SourceEnv }

func (envProvider) Watch(context.Context, func()) error { return nil }

func (p envProvider) koanfProvider() *env.Env {
	return env.Provider(".", env.Opt{
		Prefix: p.prefix,
		TransformFunc: func(k, v string) (string, any) {
			key := strings.ToLower(strings.TrimPrefix(k, p.prefix))
			return strings.Replace(key, "_", ".", 1), v
		},
	})
}
