// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
//
// semaphore.go's FIFO counting semaphore has no exported surface of its
// own; it is exercised here through the CreateSemaphore/AcquireSemaphore/
// ReleaseSemaphore effects coreHandler dispatches to it.

package doeff_test

import (
	"testing"

	"github.com/doeffvm/doeff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreSinglePermitAcquireRelease(t *testing.T) {
	p := doeff.DoThen(
		doeff.DoPerform(doeff.CreateSemaphore{Key: "lock", Permits: 1}),
		doeff.DoThen(
			doeff.DoPerform(doeff.AcquireSemaphore{Key: "lock"}),
			doeff.DoThen(
				doeff.DoPerform(doeff.ReleaseSemaphore{Key: "lock"}),
				doeff.DoPure("ok"),
			),
		),
	)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "ok", result.Value())
}

func TestCreateSemaphoreIsIdempotent(t *testing.T) {
	p := doeff.DoThen(
		doeff.DoPerform(doeff.CreateSemaphore{Key: "dup", Permits: 1}),
		doeff.DoThen(
			doeff.DoPerform(doeff.CreateSemaphore{Key: "dup", Permits: 5}),
			doeff.DoThen(
				doeff.DoPerform(doeff.AcquireSemaphore{Key: "dup"}),
				doeff.DoPure("acquired"),
			),
		),
	)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "acquired", result.Value())
}

func TestAtomicUpdateAppliesFnSequentially(t *testing.T) {
	body := doeff.DoPerform(doeff.AtomicUpdate{
		Key:     "counter",
		Default: 0,
		Fn:      func(v any) any { return v.(int) + 1 },
	})
	p := doeff.DoFlatMap(body, func(any) doeff.Program {
		return doeff.DoFlatMap(body, func(any) doeff.Program {
			return body
		}, nil)
	}, nil)

	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 3, result.Value())
}

func TestAtomicGetReturnsDefaultWhenAbsent(t *testing.T) {
	p := doeff.DoPerform(doeff.AtomicGet{Key: "never-set", Default: "fallback"})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "fallback", result.Value())
}
