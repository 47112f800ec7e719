// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

// EffectHandler interprets effects dispatched to it by the handler stack.
// It mirrors the teacher's F-bounded Handler[H,R] contract (Dispatch
// returns a resume-or-short-circuit decision) generalized to the seven-way
// Decision the dynamic interpreter needs: Resume, Transfer, Delegate,
// Pass, a replacement Program or value, or an Error.
//
// st gives the handler access to the live CESK state (env, store, call
// stack) it needs to interpret effects like Get/Put/Ask; k is the one-shot
// continuation token for the effect's resumption point.
type EffectHandler interface {
	HandleEffect(st *CESKState, e Effect, k *Continuation) Decision
}

// HandlerScope distinguishes handlers whose state is private per task
// (ISOLATED: snapshotted on Spawn, merged on Join) from handlers whose
// state is shared process-wide (SHARED: Spawn/Join are no-ops for it).
// Supplemented from original_source/doeff/handlers/__init__.py; see
// DESIGN.md's Open Question entry on __memo__.
type HandlerScope int

const (
	// ScopeIsolated handlers (reader, state, writer) get their own
	// snapshot per spawned task.
	ScopeIsolated HandlerScope = iota
	// ScopeShared handlers (memo, persistent cache, semaphore table) are
	// shared by reference across all tasks in a run.
	ScopeShared
)

type handlerEntry struct {
	Handler EffectHandler
	Meta    *HandlerMeta
	Scope   HandlerScope
}

// DecisionKind tags the seven outcomes a handler may produce for an effect,
// per spec.md §4.3.
type DecisionKind int

const (
	// DecisionResume restores k (which must be the current K) and sets
	// control to Value(v).
	DecisionResume DecisionKind = iota
	// DecisionTransfer unwinds K down to and including the frame where k
	// was captured, running all finalizers, then restores k's captured
	// state and sets control to Value(v).
	DecisionTransfer
	// DecisionDelegate passes Effect (the original, or a replacement) to
	// the next handler down the stack.
	DecisionDelegate
	// DecisionPass is shorthand for DecisionDelegate with an unchanged
	// effect: "I do not handle this."
	DecisionPass
	// DecisionProgram replaces control with a new Program to evaluate in
	// place of the effect.
	DecisionProgram
	// DecisionValue fully resolves the effect with a plain value.
	DecisionValue
	// DecisionError fails the effect with err, entering error-unwind.
	DecisionError
)

// Decision is a handler's response to an effect, per spec.md §4.3.
type Decision struct {
	Kind    DecisionKind
	K       *Continuation // DecisionResume, DecisionTransfer
	Value   any           // DecisionResume, DecisionTransfer, DecisionValue
	Effect  Effect        // DecisionDelegate (nil keeps the current effect)
	Program Program       // DecisionProgram
	Err     error         // DecisionError
}

// Resume builds a DecisionResume.
func Resume(k *Continuation, v any) Decision { return Decision{Kind: DecisionResume, K: k, Value: v} }

// TransferDecision builds a DecisionTransfer.
func TransferDecision(k *Continuation, v any) Decision {
	return Decision{Kind: DecisionTransfer, K: k, Value: v}
}

// Delegate builds a DecisionDelegate, replacing the effect under
// consideration. Pass effect as nil to keep the original effect.
func Delegate(e Effect) Decision { return Decision{Kind: DecisionDelegate, Effect: e} }

// PassDecision builds the "I don't handle this" shorthand.
func PassDecision() Decision { return Decision{Kind: DecisionPass} }

// ProgramDecision builds a DecisionProgram: the effect is replaced by p.
func ProgramDecision(p Program) Decision { return Decision{Kind: DecisionProgram, Program: p} }

// ValueDecision builds a DecisionValue: the effect fully resolves to v.
func ValueDecision(v any) Decision { return Decision{Kind: DecisionValue, Value: v} }

// ErrorDecision builds a DecisionError: the effect fails, entering
// error-unwind from the current point in K.
func ErrorDecision(err error) Decision { return Decision{Kind: DecisionError, Err: err} }

// dispatchEffect implements spec.md §4.3's dispatch loop: walk the handler
// stack from the top (the end of st.Handlers, LIFO order of installation),
// invoking each handler until one resumes, transfers, or fully resolves
// the effect; Delegate/Pass advances to the next handler down; reaching
// the bottom without resolution is a fatal UnhandledEffectError.
func dispatchEffect(st *CESKState, e Effect) {
	continueDispatch(st, len(st.Handlers)-1, e)
}

// continueDispatch resumes the dispatch loop at startIndex, used both by
// dispatchEffect (startIndex = top of stack) and by a DoDelegate Program
// node evaluated from within a handler whose body is itself expressed as a
// Program rather than native Go (interpreter.go's delegateNode case).
func continueDispatch(st *CESKState, startIndex int, e Effect) {
	i := startIndex
	cur := e
	for {
		if i < 0 {
			recordUnhandledEffect()
			panic(&UnhandledEffectError{Effect: cur})
		}
		entry := st.Handlers[i]
		k := &Continuation{
			id:       st.nextContinuationID(),
			k:        cloneFrames(st.K),
			handlers: cloneHandlerEntries(st.Handlers[:i]),
			env:      cloneEnv(st.Env),
		}
		st.pendingEffect = cur
		st.dispatchIndex = i
		decision := entry.Handler.HandleEffect(st, cur, k)
		switch decision.Kind {
		case DecisionResume:
			if !decision.K.tryConsume() {
				panic(&InterpreterInvariantError{Reason: "continuation resumed more than once"})
			}
			recordDispatch("resume", len(st.K), len(st.Handlers))
			st.Control = valueControl{Value: decision.Value}
			return
		case DecisionTransfer:
			if !decision.K.tryConsume() {
				panic(&InterpreterInvariantError{Reason: "continuation resumed more than once"})
			}
			recordDispatch("transfer", len(st.K), len(st.Handlers))
			st.transferTo(decision.K, decision.Value)
			return
		case DecisionDelegate:
			if decision.Effect != nil {
				cur = decision.Effect
			}
			i--
			continue
		case DecisionPass:
			i--
			continue
		case DecisionProgram:
			recordDispatch("program", len(st.K), len(st.Handlers))
			st.Control = programControl{Program: decision.Program}
			return
		case DecisionValue:
			recordDispatch("value", len(st.K), len(st.Handlers))
			st.Control = valueControl{Value: decision.Value}
			return
		case DecisionError:
			recordDispatch("error", len(st.K), len(st.Handlers))
			st.Control = errorControl{Err: decision.Err}
			return
		default:
			panic(&InterpreterInvariantError{Reason: "handler returned an unrecognized decision"})
		}
	}
}

func cloneFrames(k []KFrame) []KFrame {
	out := make([]KFrame, len(k))
	copy(out, k)
	return out
}

func cloneHandlerEntries(h []handlerEntry) []handlerEntry {
	out := make([]handlerEntry, len(h))
	copy(out, h)
	return out
}

func cloneEnv(env map[string]any) map[string]any {
	out := make(map[string]any, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
