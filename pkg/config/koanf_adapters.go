package config

import (
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

func structsProvider(cfg *Config) koanf.Provider {
	return structs.Provider(cfg, "koanf")
}

func mapProvider(values map[string]any) koanf.Provider {
	return confmap.Provider(values, ".")
}
