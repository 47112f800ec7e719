// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff_test

import (
	"testing"

	"github.com/doeffvm/doeff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoPureRunsToValue(t *testing.T) {
	result := doeff.Run(doeff.DoPure(42))
	require.True(t, result.IsOk())
	assert.Equal(t, 42, result.Value())
}

func TestDoMapProjectsValue(t *testing.T) {
	p := doeff.DoMap(doeff.DoPure(10), func(v any) any { return v.(int) * 2 }, nil)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 20, result.Value())
}

func TestDoFlatMapSequences(t *testing.T) {
	p := doeff.DoFlatMap(doeff.DoPure(1), func(v any) doeff.Program {
		return doeff.DoPure(v.(int) + 1)
	}, nil)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 2, result.Value())
}

func TestDoThenDiscardsFirstValue(t *testing.T) {
	p := doeff.DoThen(doeff.DoPure("ignored"), doeff.DoPure("kept"))
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "kept", result.Value())
}

func TestDoEvalForcesSubprogram(t *testing.T) {
	p := doeff.DoEval(doeff.DoPure("forced"))
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "forced", result.Value())
}

func TestDoApplyResolvesPureAndPerformArgs(t *testing.T) {
	p := doeff.DoApply(func(positional []any, keyword map[string]any) any {
		return positional[0].(int) + positional[1].(int) + keyword["extra"].(int)
	}, []doeff.Arg{
		doeff.DoArgPure(1),
		doeff.DoArgPerform(doeff.DoPure(2)),
	}, map[string]doeff.Arg{
		"extra": doeff.DoArgPure(3),
	}, nil)

	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 6, result.Value())
}

func TestDoApplyPropagatesArgPerformFailure(t *testing.T) {
	boom := doeff.DoPerform(doeff.Fail{Exc: assert.AnError})
	p := doeff.DoApply(func(positional []any, keyword map[string]any) any {
		t.Fatal("fn should never run when an argument fails")
		return nil
	}, []doeff.Arg{doeff.DoArgPerform(boom)}, nil, nil)

	result := doeff.Run(p)
	assert.False(t, result.IsOk())
}

func TestDoGetContinuationReturnsOpaqueValue(t *testing.T) {
	p := doeff.DoFlatMap(doeff.DoGetContinuation(), func(v any) doeff.Program {
		_, ok := v.(*doeff.Continuation)
		assert.True(t, ok, "expected *doeff.Continuation, got %T", v)
		return doeff.DoPure("done")
	}, nil)

	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "done", result.Value())
}

func TestDoAsyncEscapeRejectedUnderRun(t *testing.T) {
	p := doeff.DoAsyncEscape(fakeAwaitable{value: "x"})
	result := doeff.Run(p)
	assert.False(t, result.IsOk())
}

func TestDoAsyncEscapePermittedUnderAsyncRun(t *testing.T) {
	p := doeff.DoAsyncEscape(fakeAwaitable{value: "async-value"})
	result := doeff.AsyncRun(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "async-value", result.Value())
}

type fakeAwaitable struct {
	value any
	err   error
}

func (f fakeAwaitable) Await() (any, error) { return f.value, f.err }
