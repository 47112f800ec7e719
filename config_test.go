// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/doeffvm/doeff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDBPathEnvOverrideIsObservedByCacheSet(t *testing.T) {
	dir, err := os.MkdirTemp("", "doeff-config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	t.Setenv("DOEFF_CACHE_PATH", dir)

	p := doeff.DoThen(
		doeff.DoPerform(doeff.CacheSet{Key: "env-key", Value: []byte("env-value")}),
		doeff.DoPerform(doeff.CacheGet{Key: "env-key"}),
	)
	// Deliberately do not pass WithCacheDBPath: defaultInterpreterConfig
	// reads DOEFF_CACHE_PATH via applyEnvOverrides.
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, []byte("env-value"), result.Value())
}

func TestWithCacheDBPathOverridesEnv(t *testing.T) {
	envDir, err := os.MkdirTemp("", "doeff-config-env-*")
	require.NoError(t, err)
	defer os.RemoveAll(envDir)
	optDir, err := os.MkdirTemp("", "doeff-config-opt-*")
	require.NoError(t, err)
	defer os.RemoveAll(optDir)

	t.Setenv("DOEFF_CACHE_PATH", envDir)

	p := doeff.DoThen(
		doeff.DoPerform(doeff.CacheSet{Key: "k", Value: []byte("v")}),
		doeff.DoPerform(doeff.CacheGet{Key: "k"}),
	)
	result := doeff.Run(p, doeff.WithCacheDBPath(optDir))
	require.True(t, result.IsOk())
	assert.Equal(t, []byte("v"), result.Value())

	// The value must have landed under optDir, not envDir, proving the
	// RunOption takes precedence over the environment default.
	entries, err := os.ReadDir(optDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestWithMaxStackDepthTriggersOverflow(t *testing.T) {
	var deep func(n int) doeff.Program
	deep = func(n int) doeff.Program {
		if n == 0 {
			return doeff.DoPure(0)
		}
		return doeff.DoMap(deep(n-1), func(v any) any { return v.(int) + 1 }, nil)
	}
	result := doeff.Run(deep(50), doeff.WithMaxStackDepth(10))
	assert.False(t, result.IsOk())
	var overflow *doeff.ContinuationStackOverflowError
	require.ErrorAs(t, result.Err(), &overflow)
}

func TestWithMaxLogEntriesBoundsWriterLog(t *testing.T) {
	p := doeff.DoPerform(doeff.EffListen{
		Body: doeff.DoThen(
			doeff.DoPerform(doeff.EffTell{Msg: "1"}),
			doeff.DoThen(
				doeff.DoPerform(doeff.EffTell{Msg: "2"}),
				doeff.DoThen(
					doeff.DoPerform(doeff.EffTell{Msg: "3"}),
					doeff.DoPure("done"),
				),
			),
		),
	})
	result := doeff.Run(p, doeff.WithMaxLogEntries(2))
	require.True(t, result.IsOk())
	pair := result.Value().(doeff.Pair[any, []any])
	assert.Len(t, pair.Snd, 2)
	assert.Equal(t, []any{"2", "3"}, pair.Snd)
}

func TestWithSpawnDefaultBackendAppliesWhenUnspecified(t *testing.T) {
	p := doeff.DoFlatMap(
		doeff.DoPerform(doeff.Spawn{Body: doeff.DoPure("default-backend")}),
		func(v any) doeff.Program {
			return doeff.DoPerform(doeff.TaskJoin{Task: v.(*doeff.Task)})
		},
		nil,
	)
	result := doeff.Run(p, doeff.WithSpawnDefaultBackend(doeff.BackendPooled))
	require.True(t, result.IsOk())
	assert.Equal(t, "default-backend", result.Value())
}

func TestLoadFileConfigAppliesSetFieldsOnly(t *testing.T) {
	dir, err := os.MkdirTemp("", "doeff-config-file-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "doeffctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_stack_depth: 5\nallow_reentrancy: true\n"), 0o644))

	opt, err := doeff.LoadFileConfig(path)
	require.NoError(t, err)

	var deep func(n int) doeff.Program
	deep = func(n int) doeff.Program {
		if n == 0 {
			return doeff.DoPure(0)
		}
		return doeff.DoMap(deep(n-1), func(v any) any { return v.(int) + 1 }, nil)
	}
	result := doeff.Run(deep(50), opt)
	assert.False(t, result.IsOk(), "max_stack_depth: 5 from the file must still trigger overflow")
}

func TestLoadFileConfigMissingFileFails(t *testing.T) {
	_, err := doeff.LoadFileConfig("/nonexistent/doeffctl.yaml")
	assert.Error(t, err)
}
