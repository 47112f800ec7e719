// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff_test

import (
	"os"
	"testing"

	"github.com/doeffvm/doeff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverReplacesFailureWithFallbackValue(t *testing.T) {
	p := doeff.DoPerform(doeff.Recover{
		Body:     doeff.DoPerform(doeff.Fail{Exc: assert.AnError}),
		Fallback: "fallback-value",
	})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "fallback-value", result.Value())
}

func TestRecoverFallbackCanBeAProgram(t *testing.T) {
	p := doeff.DoPerform(doeff.Recover{
		Body:     doeff.DoPerform(doeff.Fail{Exc: assert.AnError}),
		Fallback: doeff.DoMap(doeff.DoPure(10), func(v any) any { return v.(int) * 2 }, nil),
	})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 20, result.Value())
}

func TestMemoGetMissReturnsErrResult(t *testing.T) {
	p := doeff.DoPerform(doeff.MemoGet{Key: "never-memoized"})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	r := result.Value().(doeff.Result)
	assert.False(t, r.IsOk())
}

func TestMemoSetThenMemoGetHits(t *testing.T) {
	p := doeff.DoThen(
		doeff.DoPerform(doeff.MemoSet{Key: "k", Value: 42}),
		doeff.DoPerform(doeff.MemoGet{Key: "k"}),
	)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	r := result.Value().(doeff.Result)
	require.True(t, r.IsOk())
	assert.Equal(t, 42, r.Value())
}

func TestCacheGetFailsWithoutBackendConfigured(t *testing.T) {
	p := doeff.DoPerform(doeff.CacheGet{Key: "x"})
	result := doeff.Run(p)
	assert.False(t, result.IsOk())
}

func TestCacheSetThenCacheGetRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "doeff-cache-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	p := doeff.DoThen(
		doeff.DoPerform(doeff.CacheSet{Key: "k1", Value: []byte("hello")}),
		doeff.DoPerform(doeff.CacheGet{Key: "k1"}),
	)
	result := doeff.Run(p, doeff.WithCacheDBPath(dir))
	require.True(t, result.IsOk())
	assert.Equal(t, []byte("hello"), result.Value())
}

func TestCacheGetMissReturnsNil(t *testing.T) {
	dir, err := os.MkdirTemp("", "doeff-cache-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	p := doeff.DoPerform(doeff.CacheGet{Key: "never-set"})
	result := doeff.Run(p, doeff.WithCacheDBPath(dir))
	require.True(t, result.IsOk())
	assert.Nil(t, result.Value())
}

func TestDepResolvesRegisteredDependency(t *testing.T) {
	p := doeff.DoThen(
		doeff.DoPerform(doeff.EffPut{Key: "__dep__clock", Value: "fake-clock"}),
		doeff.DoPerform(doeff.Dep{Type: "clock"}),
	)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "fake-clock", result.Value())
}

func TestDepMissingFails(t *testing.T) {
	result := doeff.Run(doeff.DoPerform(doeff.Dep{Type: "missing"}))
	assert.False(t, result.IsOk())
}

func TestIOEffectRunsFnAndPropagatesError(t *testing.T) {
	ok := doeff.Run(doeff.DoPerform(doeff.IO{Fn: func() (any, error) { return "io-value", nil }}))
	require.True(t, ok.IsOk())
	assert.Equal(t, "io-value", ok.Value())

	failed := doeff.Run(doeff.DoPerform(doeff.IO{Fn: func() (any, error) { return nil, assert.AnError }}))
	assert.False(t, failed.IsOk())
}

func TestPrintEffectReturnsNil(t *testing.T) {
	result := doeff.Run(doeff.DoPerform(doeff.Print{Args: []any{"quiet test output"}}))
	require.True(t, result.IsOk())
	assert.Nil(t, result.Value())
}

func TestStepEffectIsANoOp(t *testing.T) {
	result := doeff.Run(doeff.DoThen(doeff.DoPerform(doeff.Step{}), doeff.DoPure("after-step")))
	require.True(t, result.IsOk())
	assert.Equal(t, "after-step", result.Value())
}

// A named Apply's CallFrame is popped as soon as its Fn returns (the very
// next CESK step), so a DoGetCallStack chained after it observes an empty
// stack rather than the completed call — this asserts that pop timing
// rather than a (nonexistent) live mid-call snapshot.
func TestProgramCallStackEmptyAfterApplyCompletes(t *testing.T) {
	named := doeff.DoApply(func(positional []any, keyword map[string]any) any {
		return positional[0]
	}, []doeff.Arg{doeff.DoArgPure("value")}, nil, &doeff.CallMeta{FuncName: "namedCall"})

	p := doeff.DoFlatMap(named, func(any) doeff.Program {
		return doeff.DoGetCallStack()
	}, nil)

	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Empty(t, result.Value().([]doeff.CallFrame))
}

func TestProgramCallFrameOutOfRangeFails(t *testing.T) {
	result := doeff.Run(doeff.DoPerform(doeff.ProgramCallFrame{Depth: 5}))
	assert.False(t, result.IsOk())
}

func TestSnapshotReturnsGraph(t *testing.T) {
	p := doeff.DoWithHandler(echoHandler{}, doeff.DoPerform(doeff.Snapshot{}), &doeff.HandlerMeta{Name: "echo"})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	g := result.Value().(doeff.Graph)
	// One node per installed handler: the always-present coreHandler plus
	// the echoHandler this test installs via DoWithHandler.
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "handler", g.Nodes[0].Kind)
	assert.Equal(t, "core", g.Nodes[0].Label)
	assert.Equal(t, "echo", g.Nodes[1].Label)
}

func TestThreadRunsUnderDefaultBackend(t *testing.T) {
	p := doeff.DoPerform(doeff.Thread{Body: doeff.DoPure("threaded"), Strategy: "isolated"})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	task := result.Value().(*doeff.Task)
	joined := doeff.Run(doeff.DoPerform(doeff.TaskJoin{Task: task}), doeff.WithReentrancy(true))
	_ = joined
}

func TestAnnotateAttachesMetadataWithoutError(t *testing.T) {
	named := doeff.DoApply(func(positional []any, keyword map[string]any) any {
		return "called"
	}, nil, nil, &doeff.CallMeta{FuncName: "annotated"})

	p := doeff.DoFlatMap(named, func(any) doeff.Program {
		return doeff.DoPerform(doeff.Annotate{Key: "k", Value: "v"})
	}, nil)

	result := doeff.Run(p)
	require.True(t, result.IsOk())
}
