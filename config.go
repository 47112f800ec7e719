// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// runningGuard enforces AllowReentrancy=false across the whole process,
// following the teacher's preference for atomics over mutexes on a single
// guard flag.
var runningGuard atomic.Bool

// InterpreterConfig holds every tunable named in spec.md §6's configuration
// table. defaultInterpreterConfig builds the defaults and applies the
// environment variables to them; the RunOption functional options
// (including the one LoadFileConfig returns for a YAML file) are applied
// afterwards in order, so a RunOption overrides the environment.
type InterpreterConfig struct {
	MaxLogEntries        int
	MaxStackDepth        int
	AllowReentrancy      bool
	SpawnDefaultBackend  SpawnBackend
	SpawnThreadMaxWorkers int
	CacheDBPath          string
	ProfilingEnabled     bool
	AllowAsyncEscape     bool
}

func defaultInterpreterConfig() *InterpreterConfig {
	cfg := &InterpreterConfig{
		MaxLogEntries:         10_000,
		MaxStackDepth:         100_000,
		AllowReentrancy:       false,
		SpawnDefaultBackend:   BackendThread,
		SpawnThreadMaxWorkers: 0, // not read by scheduler.go; the pooled backend's limit is fixed at 64
		CacheDBPath:           "",
		ProfilingEnabled:      false,
	}
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides reads DOEFF_CACHE_PATH and DOEFF_DISABLE_PROFILE, the
// two environment knobs named in SPEC_FULL.md's ambient configuration
// section.
func applyEnvOverrides(cfg *InterpreterConfig) {
	if path := os.Getenv("DOEFF_CACHE_PATH"); path != "" {
		cfg.CacheDBPath = path
	}
	if v := os.Getenv("DOEFF_DISABLE_PROFILE"); v == "1" || v == "true" {
		cfg.ProfilingEnabled = false
	}
}

// RunOption customizes an InterpreterConfig before a Run/AsyncRun call.
type RunOption func(*InterpreterConfig)

// WithMaxLogEntries caps the writer log's retained entry count (0 = unbounded).
func WithMaxLogEntries(n int) RunOption { return func(c *InterpreterConfig) { c.MaxLogEntries = n } }

// WithMaxStackDepth caps K's depth before ContinuationStackOverflowError (0 = unbounded).
func WithMaxStackDepth(n int) RunOption { return func(c *InterpreterConfig) { c.MaxStackDepth = n } }

// WithReentrancy permits nested Run/AsyncRun calls from within a running interpreter.
func WithReentrancy(allow bool) RunOption { return func(c *InterpreterConfig) { c.AllowReentrancy = allow } }

// WithSpawnDefaultBackend sets the backend used by Spawn when the caller
// does not specify one explicitly.
func WithSpawnDefaultBackend(b SpawnBackend) RunOption {
	return func(c *InterpreterConfig) { c.SpawnDefaultBackend = b }
}

// WithSpawnThreadMaxWorkers records a worker count in the config.
// BackendPooled does not read it: its pool is one process-wide errgroup
// limited to 64 goroutines (scheduler.go).
func WithSpawnThreadMaxWorkers(n int) RunOption {
	return func(c *InterpreterConfig) { c.SpawnThreadMaxWorkers = n }
}

// WithCacheDBPath sets the persistent cache backend's storage path.
func WithCacheDBPath(path string) RunOption { return func(c *InterpreterConfig) { c.CacheDBPath = path } }

// WithProfiling turns on zerolog trace-level step logging.
func WithProfiling(enabled bool) RunOption { return func(c *InterpreterConfig) { c.ProfilingEnabled = enabled } }

// FileConfig is the subset of InterpreterConfig loadable from a YAML
// configuration file, field names matching the flattened config keys a
// deployment would set under e.g. doeffctl.yaml.
type FileConfig struct {
	MaxLogEntries         *int    `yaml:"max_log_entries"`
	MaxStackDepth         *int    `yaml:"max_stack_depth"`
	AllowReentrancy       *bool   `yaml:"allow_reentrancy"`
	SpawnThreadMaxWorkers *int    `yaml:"spawn_thread_max_workers"`
	CacheDBPath           *string `yaml:"cache_db_path"`
	ProfilingEnabled      *bool   `yaml:"profiling_enabled"`
}

// LoadFileConfig reads a YAML config file and returns a RunOption applying
// every field it sets, leaving unset fields at their current value.
func LoadFileConfig(path string) (RunOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	return func(c *InterpreterConfig) {
		if fc.MaxLogEntries != nil {
			c.MaxLogEntries = *fc.MaxLogEntries
		}
		if fc.MaxStackDepth != nil {
			c.MaxStackDepth = *fc.MaxStackDepth
		}
		if fc.AllowReentrancy != nil {
			c.AllowReentrancy = *fc.AllowReentrancy
		}
		if fc.SpawnThreadMaxWorkers != nil {
			c.SpawnThreadMaxWorkers = *fc.SpawnThreadMaxWorkers
		}
		if fc.CacheDBPath != nil {
			c.CacheDBPath = *fc.CacheDBPath
		}
		if fc.ProfilingEnabled != nil {
			c.ProfilingEnabled = *fc.ProfilingEnabled
		}
	}, nil
}

// newLogger builds the zerolog.Logger used for step tracing and scheduler
// diagnostics, writing to stderr per spec.md §6's "profiling output never
// shares stdout with Print effects" rule.
func newLogger(cfg *InterpreterConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.ProfilingEnabled {
		level = zerolog.TraceLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
