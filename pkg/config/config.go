// Package config provides layered configuration for the driver and worker
// binaries: typed defaults overridden by environment variables, loaded
// through koanf the way the teacher's pkg/config loads its own settings.
package config

import "time"

// DriverConfig tunes the batch-generation loop.
type DriverConfig struct {
	MaxBatchLen   int           `koanf:"max_batch_len"`
	BatchGapSleep time.Duration `koanf:"batch_gap_sleep"`
	PurgeAtStart  bool          `koanf:"purge_at_start"`
	PullMaxNum    int           `koanf:"pull_max_num"`
	PullMaxWait   time.Duration `koanf:"pull_max_wait"`
}

// WorkerConfig tunes the lease-execute-report loop.
type WorkerConfig struct {
	Concurrency   int           `koanf:"concurrency"`
	LeaseMaxNum   int           `koanf:"lease_max_num"`
	LeaseDuration time.Duration `koanf:"lease_duration"`
	EmptyPollWait time.Duration `koanf:"empty_poll_wait"`
}

// RedisConfig points the remote queue backend at a Redis instance.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// LogConfig configures the ambient logger.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// Config is the full configuration tree for either subcommand. The drive
// and work subcommands of cmd/flowrunner load the same shape; each only
// reads the sections it needs.
type Config struct {
	Driver DriverConfig `koanf:"driver"`
	Worker WorkerConfig `koanf:"worker"`
	Redis  RedisConfig  `koanf:"redis"`
	Log    LogConfig    `koanf:"log"`
	Queue  string       `koanf:"queue"`
}

// Default returns the configuration used when no provider overrides a
// field.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			MaxBatchLen:   10000,
			BatchGapSleep: 500 * time.Millisecond,
			PurgeAtStart:  false,
			PullMaxNum:    500,
			PullMaxWait:   2500 * time.Millisecond,
		},
		Worker: WorkerConfig{
			Concurrency:   4,
			LeaseMaxNum:   1,
			LeaseDuration: 5 * time.Minute,
			EmptyPollWait: 1 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Queue: "local",
	}
}
