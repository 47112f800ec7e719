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

// echoEffect is handled by a user-installed handler that resumes with a
// fixed value, exercising DoWithHandler/Resume without touching coreHandler.
// doeff.Effect's marker method is unexported, so echoEffect gets it by
// embedding doeff.Step; coreHandler's type switch still never matches it.
type echoEffect struct {
	doeff.Step
	Msg string
}

type echoHandler struct{}

func (echoHandler) HandleEffect(st *doeff.CESKState, e doeff.Effect, k *doeff.Continuation) doeff.Decision {
	if eff, ok := e.(echoEffect); ok {
		return doeff.Resume(k, "echo:"+eff.Msg)
	}
	return doeff.PassDecision()
}

func TestWithHandlerResumesEffect(t *testing.T) {
	p := doeff.DoWithHandler(echoHandler{}, doeff.DoPerform(echoEffect{Msg: "hi"}), nil)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "echo:hi", result.Value())
}

// delegatingHandler never resolves the effect itself, always passing it to
// the next handler down — exercising DecisionDelegate/DecisionPass.
type delegatingHandler struct{}

func (delegatingHandler) HandleEffect(st *doeff.CESKState, e doeff.Effect, k *doeff.Continuation) doeff.Decision {
	return doeff.PassDecision()
}

func TestDelegatingHandlerFallsThroughToOuterHandler(t *testing.T) {
	p := doeff.DoWithHandler(echoHandler{}, doeff.DoWithHandler(delegatingHandler{},
		doeff.DoPerform(echoEffect{Msg: "fallthrough"}), nil), nil)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "echo:fallthrough", result.Value())
}

func TestUnhandledEffectWalksOffHandlerStack(t *testing.T) {
	p := doeff.DoWithHandler(delegatingHandler{}, doeff.DoPerform(echoEffect{Msg: "nobody home"}), nil)
	result := doeff.Run(p)
	assert.False(t, result.IsOk())
}

// valueReplacingHandler resolves the effect with a plain value rather than
// resuming a captured continuation, exercising DecisionValue.
type valueReplacingHandler struct{}

func (valueReplacingHandler) HandleEffect(st *doeff.CESKState, e doeff.Effect, k *doeff.Continuation) doeff.Decision {
	return doeff.ValueDecision(99)
}

func TestValueDecisionResolvesEffect(t *testing.T) {
	p := doeff.DoWithHandler(valueReplacingHandler{}, doeff.DoPerform(echoEffect{Msg: "irrelevant"}), nil)
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, 99, result.Value())
}

// errorRaisingHandler resolves the effect by failing it, exercising
// DecisionError entering error-unwind.
type errorRaisingHandler struct{}

func (errorRaisingHandler) HandleEffect(st *doeff.CESKState, e doeff.Effect, k *doeff.Continuation) doeff.Decision {
	return doeff.ErrorDecision(assert.AnError)
}

func TestErrorDecisionEntersUnwind(t *testing.T) {
	p := doeff.DoWithHandler(errorRaisingHandler{}, doeff.DoPerform(echoEffect{Msg: "x"}), nil)
	result := doeff.Run(p)
	require.False(t, result.IsOk())
	assert.ErrorIs(t, result.Err(), assert.AnError)
}

func TestErrorDecisionCaughtByCatch(t *testing.T) {
	body := doeff.DoWithHandler(errorRaisingHandler{}, doeff.DoPerform(echoEffect{Msg: "x"}), nil)
	p := doeff.DoPerform(doeff.EffCatch{
		Body: body,
		Handler: func(err error) doeff.Program {
			return doeff.DoPure("recovered:" + err.Error())
		},
	})
	result := doeff.Run(p)
	require.True(t, result.IsOk())
	assert.Equal(t, "recovered:"+assert.AnError.Error(), result.Value())
}
