// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Control is the "what happens next" slot of a CESK state, a sum type over
// four shapes: a surfaced value, a program still to be reduced, an effect
// awaiting dispatch, or an in-flight error unwinding the frame stack.
type Control interface {
	controlNode()
}

type valueControl struct{ Value any }

func (valueControl) controlNode() {}

type programControl struct{ Program Program }

func (programControl) controlNode() {}

type effectControl struct{ Effect Effect }

func (effectControl) controlNode() {}

type errorControl struct{ Err error }

func (errorControl) controlNode() {}

// CESKState is the full mutable state of one interpreter run: Control (the
// program counter), Env (the reader environment), Store (state/writer/memo
// slots), K (the continuation stack), and Handlers (the effect handler
// stack). Mirrors the teacher's iterative, non-recursive evalFrames loop
// (trampoline.go) for stack safety instead of native Go recursion.
type CESKState struct {
	Control  Control
	Env      map[string]any
	Store    *Store
	K        []KFrame
	Handlers []handlerEntry
	Config   *InterpreterConfig
	Logger   zerolog.Logger

	contIDCounter uint64
	pendingEffect Effect
	dispatchIndex int
	reentrant     bool
	callStack     []CallFrame
	annotations   map[int]map[string]any
}

func newCESKState(p Program, cfg *InterpreterConfig, logger zerolog.Logger) *CESKState {
	return &CESKState{
		Control: programControl{Program: p},
		Env:     make(map[string]any),
		Store:   NewStore(cfg.MaxLogEntries),
		Config:  cfg,
		Logger:  logger,
	}
}

func (st *CESKState) nextContinuationID() uint64 {
	st.contIDCounter++
	return st.contIDCounter
}

// traceStep records a reduction step in the logger at trace level when
// profiling is enabled, following the teacher's zerolog-first logging
// convention rather than ad hoc fmt.Printf debugging.
func (st *CESKState) traceStep(label string) {
	if !st.Config.ProfilingEnabled {
		return
	}
	st.Logger.Trace().Str("step", label).Int("k_depth", len(st.K)).Int("handlers", len(st.Handlers)).Msg("step")
}

// RunResult is the Ok/Err sum produced by a completed run (spec.md §3.6).
// Distinct from the user-facing Result effect payload (effects.go), which
// flows as ordinary program data rather than as the run's own outcome.
type RunResult struct {
	ok    bool
	value any
	err   error
}

// RunOk constructs a successful RunResult.
func RunOk(v any) RunResult { return RunResult{ok: true, value: v} }

// RunErr constructs a failed RunResult.
func RunErr(err error) RunResult { return RunResult{err: err} }

// IsOk reports whether the run completed successfully.
func (r RunResult) IsOk() bool { return r.ok }

// Value returns the run's successful value (nil if Err).
func (r RunResult) Value() any { return r.value }

// Err returns the run's failure cause (nil if Ok).
func (r RunResult) Err() error { return r.err }

// step performs exactly one CESK reduction and reports whether the run has
// reached a final value/error with st.K empty.
func (st *CESKState) step() (done bool, result RunResult) {
	if st.Config.MaxStackDepth > 0 && len(st.K) > st.Config.MaxStackDepth {
		panic(&ContinuationStackOverflowError{Depth: len(st.K), Limit: st.Config.MaxStackDepth})
	}

	switch ctl := st.Control.(type) {
	case valueControl:
		recordStep("value")
		return st.stepValue(ctl.Value)
	case errorControl:
		recordStep("error")
		return st.stepError(ctl.Err)
	case effectControl:
		st.traceStep("effect")
		recordStep("effect")
		dispatchEffect(st, ctl.Effect)
		return false, RunResult{}
	case programControl:
		st.traceStep("program")
		recordStep("program")
		st.stepProgram(ctl.Program)
		return false, RunResult{}
	default:
		panic(&InterpreterInvariantError{Reason: "unrecognized Control implementation"})
	}
}

// stepValue implements spec.md §4.1's rule family for "control is a value":
// pop the top frame and react to its kind, or finish the run if K is empty.
func (st *CESKState) stepValue(v any) (bool, RunResult) {
	if len(st.K) == 0 {
		return true, RunOk(v)
	}
	frame := st.popFrame()
	switch f := frame.(type) {
	case KBindFrame:
		st.Env = f.SavedEnv
		st.Control = programControl{Program: f.Binder(v)}
	case KMapFrame:
		st.Control = valueControl{Value: f.Mapper(v)}
	case HandlerFrame:
		st.popHandler()
		st.Control = valueControl{Value: v}
	case GatherFrame:
		f.Collected = append(f.Collected, v)
		if len(f.Remaining) == 0 {
			st.Env = f.SavedEnv
			st.Control = valueControl{Value: f.Collected}
		} else {
			next := f.Remaining[0]
			f.Remaining = f.Remaining[1:]
			st.K = append(st.K, f)
			st.Control = programControl{Program: next}
		}
	case ListenFrame:
		entries := st.Store.Log().Slice(f.LogStartIndex)
		st.Control = valueControl{Value: Pair[any, []any]{Fst: v, Snd: entries}}
	case LocalFrame:
		st.Env = f.RestoreEnv
		st.Control = valueControl{Value: v}
	case SafeFrame:
		st.Env = f.SavedEnv
		st.Control = valueControl{Value: Ok(v)}
	case FinallyFrame:
		st.evalFinalizerThenContinue(f.Finalizer, valueControl{Value: v})
	case CallFrame:
		if len(st.callStack) > 0 {
			st.callStack = st.callStack[:len(st.callStack)-1]
		}
		st.Control = valueControl{Value: v}
	case InterceptFrame:
		st.Control = valueControl{Value: v}
	case catchFrame:
		st.Control = valueControl{Value: v}
	default:
		panic(&InterpreterInvariantError{Reason: fmt.Sprintf("unrecognized frame %T in value position", frame)})
	}
	return false, RunResult{}
}

// stepError implements the error-unwind half of §4.1's frame table: most
// frames simply propagate the error, but catchFrame, FinallyFrame, and
// SafeFrame intercept it.
func (st *CESKState) stepError(err error) (bool, RunResult) {
	if len(st.K) == 0 {
		return true, RunErr(err)
	}
	frame := st.popFrame()
	switch f := frame.(type) {
	case catchFrame:
		st.Control = programControl{Program: f.Handler(err)}
	case FinallyFrame:
		st.evalFinalizerThenContinue(f.Finalizer, errorControl{Err: err})
	case SafeFrame:
		st.Env = f.SavedEnv
		st.Control = valueControl{Value: ErrResult(err)}
	case HandlerFrame:
		st.popHandler()
		st.Control = errorControl{Err: err}
	case LocalFrame:
		st.Env = f.RestoreEnv
		st.Control = errorControl{Err: err}
	case CallFrame:
		if len(st.callStack) > 0 {
			st.callStack = st.callStack[:len(st.callStack)-1]
		}
		st.Control = errorControl{Err: err}
	default:
		// KBindFrame, KMapFrame, GatherFrame, ListenFrame, InterceptFrame: a
		// raised error skips straight past them (spec.md §7: "propagates
		// through ordinary frames unless a Catch/Safe/Finally intervenes").
		st.Control = errorControl{Err: err}
	}
	return false, RunResult{}
}

// evalFinalizerThenContinue runs finalizer to completion via a nested
// sub-evaluation sharing this state's Store, then resumes with resumeTo —
// unless the finalizer itself fails, in which case its failure takes over
// (spec.md §5: a finalizer error is reported, never silently swallowed).
func (st *CESKState) evalFinalizerThenContinue(finalizer Program, resumeTo Control) {
	_, err := st.evalToCompletion(finalizer)
	if err != nil {
		st.Control = errorControl{Err: err}
		return
	}
	st.Control = resumeTo
}

// evalToCompletion drives a subprogram to completion in a fresh, isolated
// K/handler-stack sharing this state's Store and starting from a copy of its
// Env, for use by finalizers (including those Transfer runs while
// unwinding), Apply argument evaluation, and lazy Ask resolution. It is a
// nested trampoline, not recursion
// into step(), following the teacher's preference for iterative loops.
func (st *CESKState) evalToCompletion(p Program) (any, error) {
	sub := &CESKState{
		Control:  programControl{Program: p},
		Env:      cloneEnv(st.Env),
		Store:    st.Store,
		Handlers: cloneHandlerEntries(st.Handlers),
		Config:   st.Config,
		Logger:   st.Logger,
	}
	for {
		done, result := sub.step()
		if done {
			if result.IsOk() {
				return result.Value(), nil
			}
			return nil, result.Err()
		}
	}
}

func (st *CESKState) popFrame() KFrame {
	top := st.K[len(st.K)-1]
	st.K = st.K[:len(st.K)-1]
	return top
}

func (st *CESKState) popHandler() {
	if len(st.Handlers) > 0 {
		st.Handlers = st.Handlers[:len(st.Handlers)-1]
	}
}

// resolveArg evaluates a single Apply argument: DoArgPure passes through,
// DoArgPerform is run to completion via the nested trampoline (arguments
// are evaluated left to right, matching spec.md's Apply description).
func (st *CESKState) resolveArg(a Arg) any {
	switch v := a.(type) {
	case argPure:
		return v.Value
	case argPerform:
		result, err := st.evalToCompletion(v.Sub)
		if err != nil {
			panic(&EffectFailure{Cause: err})
		}
		return result
	default:
		panic(&InterpreterInvariantError{Reason: "unrecognized Arg implementation"})
	}
}

// stepProgram evaluates exactly one Program node, mutating st.Control (and
// possibly st.K/st.Handlers/st.Env) to the next state, per spec.md §3.1 and
// §4.1.
func (st *CESKState) stepProgram(p Program) {
	switch n := p.(type) {
	case pureNode:
		st.Control = valueControl{Value: n.Value}

	case applyNode:
		positional := make([]any, len(n.Positional))
		for i, a := range n.Positional {
			positional[i] = st.resolveArg(a)
		}
		keyword := make(map[string]any, len(n.Keyword))
		for name, a := range n.Keyword {
			keyword[name] = st.resolveArg(a)
		}
		if n.Meta != nil {
			st.callStack = append(st.callStack, CallFrame{FuncName: n.Meta.FuncName, Depth: len(st.callStack)})
			st.K = append(st.K, CallFrame{FuncName: n.Meta.FuncName, Depth: len(st.callStack)})
		}
		st.Control = valueControl{Value: n.Fn(positional, keyword)}

	case evalNode:
		st.Control = programControl{Program: n.Expr}

	case mapNode:
		st.K = append(st.K, KMapFrame{Mapper: n.Mapper, Meta: n.Meta})
		st.Control = programControl{Program: n.Source}

	case flatMapNode:
		st.K = append(st.K, KBindFrame{Binder: n.Binder, SavedEnv: cloneEnv(st.Env), Meta: n.Meta})
		st.Control = programControl{Program: n.Source}

	case performNode:
		st.Control = effectControl{Effect: n.Effect}

	case withHandlerNode:
		st.Handlers = append(st.Handlers, handlerEntry{Handler: n.Handler, Meta: n.HandlerMeta, Scope: ScopeIsolated})
		st.K = append(st.K, HandlerFrame{Handler: n.Handler, HandlerMeta: n.HandlerMeta})
		st.Control = programControl{Program: n.Body}

	case resumeNode:
		if !n.K.tryConsume() {
			panic(&InterpreterInvariantError{Reason: "continuation resumed more than once"})
		}
		st.K = cloneFrames(n.K.k)
		st.Env = cloneEnv(n.K.env)
		st.Handlers = cloneHandlerEntries(n.K.handlers)
		st.Control = valueControl{Value: n.Value}

	case delegateNode:
		eff := st.pendingEffect
		if n.Effect != nil {
			eff = n.Effect
		}
		if eff == nil {
			panic(&InterpreterInvariantError{Reason: "Delegate used outside effect dispatch"})
		}
		continueDispatch(st, st.dispatchIndex-1, eff)

	case transferNode:
		if !n.K.tryConsume() {
			panic(&InterpreterInvariantError{Reason: "continuation resumed more than once"})
		}
		st.transferTo(n.K, n.Value)

	case createContinuationNode:
		k := &Continuation{
			id:       st.nextContinuationID(),
			k:        cloneFrames(st.K),
			handlers: cloneHandlerEntries(st.Handlers),
			env:      cloneEnv(st.Env),
		}
		st.Control = programControl{Program: n.Body(k)}

	case resumeContinuationNode:
		if !n.K.tryConsume() {
			panic(&InterpreterInvariantError{Reason: "continuation resumed more than once"})
		}
		st.K = cloneFrames(n.K.k)
		st.Env = cloneEnv(n.K.env)
		st.Handlers = cloneHandlerEntries(n.K.handlers)
		st.Control = valueControl{Value: n.Value}

	case getContinuationNode:
		k := &Continuation{
			id:       st.nextContinuationID(),
			k:        cloneFrames(st.K),
			handlers: cloneHandlerEntries(st.Handlers),
			env:      cloneEnv(st.Env),
		}
		st.Control = valueControl{Value: k}

	case getHandlersNode:
		out := make([]EffectHandler, len(st.Handlers))
		for i, h := range st.Handlers {
			out[i] = h.Handler
		}
		st.Control = valueControl{Value: out}

	case getCallStackNode:
		out := make([]CallFrame, len(st.callStack))
		copy(out, st.callStack)
		st.Control = valueControl{Value: out}

	case getTraceNode:
		st.Control = valueControl{Value: st.buildTrace()}

	case asyncEscapeNode:
		if !st.Config.AllowAsyncEscape {
			panic(&InterpreterInvariantError{Reason: "AsyncEscape used under a synchronous Run"})
		}
		value, err := n.Awaitable.Await()
		if err != nil {
			st.Control = errorControl{Err: err}
			return
		}
		st.Control = valueControl{Value: value}

	default:
		panic(&InterpreterInvariantError{Reason: fmt.Sprintf("unrecognized Program node %T", p)})
	}
}

// transferTo implements spec.md §4.3's Transfer semantics: unwind the live
// K down to (and including) the frame at which k was captured, running any
// FinallyFrame finalizers encountered along the way, then splice in k's own
// captured K/Env/Handlers and surface value.
func (st *CESKState) transferTo(k *Continuation, value any) {
	target := len(k.k)
	for len(st.K) > target {
		top := st.popFrame()
		if ff, ok := top.(FinallyFrame); ok {
			_, err := st.evalToCompletion(ff.Finalizer)
			if err != nil {
				st.Control = errorControl{Err: err}
				return
			}
		}
		if hf, ok := top.(HandlerFrame); ok {
			_ = hf
			st.popHandler()
		}
	}
	st.K = cloneFrames(k.k)
	st.Env = cloneEnv(k.env)
	st.Handlers = cloneHandlerEntries(k.handlers)
	st.Control = valueControl{Value: value}
}

// Run evaluates p to completion synchronously. AsyncEscape is rejected.
func Run(p Program, opts ...RunOption) RunResult {
	return runWithConfig(p, false, opts)
}

// AsyncRun evaluates p to completion, permitting AsyncEscape to cross into
// host-async land via Awaitable.Await.
func AsyncRun(p Program, opts ...RunOption) RunResult {
	return runWithConfig(p, true, opts)
}

func runWithConfig(p Program, allowAsync bool, opts []RunOption) (result RunResult) {
	cfg := defaultInterpreterConfig()
	cfg.AllowAsyncEscape = allowAsync
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.AllowReentrancy && runningGuard.Load() {
		return RunErr(&InterpreterReentrancyError{})
	}
	if !cfg.AllowReentrancy {
		runningGuard.Store(true)
		defer runningGuard.Store(false)
	}

	logger := newLogger(cfg)
	st := newCESKState(p, cfg, logger)
	st.Handlers = defaultHandlers(cfg)

	if cfg.CacheDBPath != "" {
		cache, err := OpenCache(cfg.CacheDBPath)
		if err != nil {
			return RunErr(fmt.Errorf("doeff: open cache at %q: %w", cfg.CacheDBPath, err))
		}
		defer cache.Close()
		st.Store.cache = cache
	}

	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				result = RunErr(err)
				return
			}
			result = RunErr(fmt.Errorf("doeff: %v", r))
		}
	}()

	for {
		done, res := st.step()
		if done {
			return res
		}
	}
}
