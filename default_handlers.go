// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"fmt"
	"os"
	"time"
)

// coreHandler is the bottom-most handler installed by every Run/AsyncRun
// call, implementing every built-in effect named in spec.md §3.2/§4.2.
// It is one handler rather than seven (spec.md's "result-safe / state /
// writer / reader / lazy-ask / scheduler / await" enumeration) because,
// unlike the Python original's chain of small composable handlers, here a
// single switch keeps dispatch to a single HandleEffect call per effect —
// the teacher's own fused handlers (compose.go: stateReaderHandler,
// stateWriterHandler) make the same trade for the same reason.
type coreHandler struct{}

func (coreHandler) HandleEffect(st *CESKState, e Effect, k *Continuation) Decision {
	switch eff := e.(type) {

	// --- Reader / Writer ---------------------------------------------
	case EffAsk:
		return handleAsk(st, eff)
	case Local:
		st.K = append(st.K, LocalFrame{RestoreEnv: cloneEnv(st.Env)})
		if st.Env == nil {
			st.Env = make(map[string]any)
		} else {
			st.Env = cloneEnv(st.Env)
		}
		for key, v := range eff.EnvUpdate {
			st.Env[key] = v
		}
		return ProgramDecision(eff.Body)
	case EffTell:
		st.Store.Log().Append(eff.Msg)
		return ValueDecision(nil)
	case EffListen:
		st.K = append(st.K, ListenFrame{LogStartIndex: st.Store.Log().Len()})
		return ProgramDecision(eff.Body)

	// --- State --------------------------------------------------------
	case EffGet:
		v, _ := st.Store.Get(eff.Key)
		return ValueDecision(v)
	case EffPut:
		st.Store.Put(eff.Key, eff.Value)
		return ValueDecision(nil)
	case EffModify:
		return ValueDecision(st.Store.Modify(eff.Key, eff.Fn))
	case AtomicGet:
		st.Store.semaphores.create("__atomic__"+eff.Key, 1)
		st.Store.semaphores.acquire("__atomic__" + eff.Key)
		defer st.Store.semaphores.release("__atomic__" + eff.Key)
		v, ok := st.Store.Get(eff.Key)
		if !ok {
			return ValueDecision(eff.Default)
		}
		return ValueDecision(v)
	case AtomicUpdate:
		st.Store.semaphores.create("__atomic__"+eff.Key, 1)
		st.Store.semaphores.acquire("__atomic__" + eff.Key)
		defer st.Store.semaphores.release("__atomic__" + eff.Key)
		v, ok := st.Store.Get(eff.Key)
		if !ok {
			v = eff.Default
		}
		return ValueDecision(st.Store.Modify(eff.Key, func(any) any { return eff.Fn(v) }))

	// --- Result / error handling ---------------------------------------
	case Fail:
		return ErrorDecision(eff.Exc)
	case EffCatch:
		st.K = append(st.K, catchFrame{Handler: eff.Handler})
		return ProgramDecision(eff.Body)
	case Finally:
		st.K = append(st.K, FinallyFrame{Finalizer: eff.Finalizer})
		return ProgramDecision(eff.Body)
	case Recover:
		fallback := eff.Fallback
		st.K = append(st.K, catchFrame{Handler: func(error) Program {
			if p, ok := fallback.(Program); ok {
				return p
			}
			return DoPure(fallback)
		}})
		return ProgramDecision(eff.Body)
	case Retry:
		return ProgramDecision(buildRetryProgram(eff, 1))
	case Safe:
		st.K = append(st.K, SafeFrame{SavedEnv: cloneEnv(st.Env)})
		return ProgramDecision(eff.Body)
	case Unwrap:
		if eff.Result.IsOk() {
			return ValueDecision(eff.Result.Value())
		}
		return ErrorDecision(eff.Result.Error())
	case FirstSuccess:
		return ProgramDecision(buildFirstSuccessProgram(eff.Progs))

	// --- Async / scheduling ---------------------------------------------
	case Await:
		v, err := eff.Awaitable.Await()
		if err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(v)
	case Spawn:
		backend := eff.Backend
		// The zero SpawnBackend (BackendThread) counts as unspecified.
		if backend == BackendThread {
			backend = st.Config.SpawnDefaultBackend
		}
		return ValueDecision(spawnTask(st, eff.Body, backend))
	case Thread:
		return ValueDecision(spawnTask(st, eff.Body, st.Config.SpawnDefaultBackend))
	case Gather:
		results, err := gatherTasks(st, eff.Progs)
		if err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(results)
	case GatherDict:
		names := make([]string, 0, len(eff.Progs))
		progs := make([]Program, 0, len(eff.Progs))
		for name, p := range eff.Progs {
			names = append(names, name)
			progs = append(progs, p)
		}
		results, err := gatherTasks(st, progs)
		if err != nil {
			return ErrorDecision(err)
		}
		out := make(map[string]any, len(names))
		for i, name := range names {
			out[name] = results[i]
		}
		return ValueDecision(out)
	case Race:
		v, err := raceTasks(st, eff.Progs)
		if err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(v)
	case TaskJoin:
		v, err := joinTask(st, eff.Task)
		if err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(v)
	case TaskCancel:
		cancelTask(eff.Task)
		return ValueDecision(nil)
	case CreatePromise, CompletePromise, FailPromise:
		return handlePromise(st, eff)

	// --- Semaphore --------------------------------------------------
	case CreateSemaphore:
		st.Store.semaphores.create(eff.Key, eff.Permits)
		return ValueDecision(nil)
	case AcquireSemaphore:
		st.Store.semaphores.acquire(eff.Key)
		return ValueDecision(nil)
	case ReleaseSemaphore:
		st.Store.semaphores.release(eff.Key)
		return ValueDecision(nil)

	// --- Reflection -----------------------------------------------------
	case ProgramCallStack:
		out := make([]CallFrame, len(st.callStack))
		copy(out, st.callStack)
		return ValueDecision(out)
	case ProgramCallFrame:
		if eff.Depth < 0 || eff.Depth >= len(st.callStack) {
			return ErrorDecision(fmt.Errorf("doeff: call frame depth %d out of range (stack depth %d)", eff.Depth, len(st.callStack)))
		}
		return ValueDecision(st.callStack[len(st.callStack)-1-eff.Depth])
	case Snapshot:
		return ValueDecision(buildGraph(st))

	// --- Control ----------------------------------------------------
	case Pass:
		return PassDecision()

	// --- Dependency injection -----------------------------------------
	case Dep:
		v, ok := st.Store.Get("__dep__" + eff.Type)
		if !ok {
			return ErrorDecision(fmt.Errorf("doeff: no dependency registered for %q", eff.Type))
		}
		return ValueDecision(v)

	// --- Memo / cache -------------------------------------------------
	case MemoGet:
		v, ok := st.Store.Memo(eff.Key)
		if !ok {
			return ValueDecision(ErrResult(fmt.Errorf("doeff: no memoized value for %q", eff.Key)))
		}
		return ValueDecision(Ok(v))
	case MemoSet:
		st.Store.SetMemo(eff.Key, eff.Value)
		return ValueDecision(nil)
	case CacheGet:
		if st.Store.cache == nil {
			return ErrorDecision(fmt.Errorf("doeff: no cache backend configured (see WithCacheDBPath)"))
		}
		v, ok, err := st.Store.cache.Get(eff.Key)
		if err != nil {
			return ErrorDecision(err)
		}
		recordCacheHit(ok)
		if !ok {
			return ValueDecision(nil)
		}
		return ValueDecision(v)
	case CacheSet:
		if st.Store.cache == nil {
			return ErrorDecision(fmt.Errorf("doeff: no cache backend configured (see WithCacheDBPath)"))
		}
		st.Store.semaphores.create("__cache__", 1)
		st.Store.semaphores.acquire("__cache__")
		defer st.Store.semaphores.release("__cache__")
		if err := st.Store.cache.Set(eff.Key, eff.Value); err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(nil)

	// --- Misc ---------------------------------------------------------
	case Annotate:
		if len(st.callStack) > 0 {
			if st.annotations == nil {
				st.annotations = make(map[int]map[string]any)
			}
			depth := len(st.callStack) - 1
			if st.annotations[depth] == nil {
				st.annotations[depth] = make(map[string]any)
			}
			st.annotations[depth][eff.Key] = eff.Value
		}
		return ValueDecision(nil)
	case Step:
		return ValueDecision(nil)
	case IO:
		v, err := eff.Fn()
		if err != nil {
			return ErrorDecision(err)
		}
		return ValueDecision(v)
	case Print:
		fmt.Fprintln(os.Stdout, eff.Args...)
		return ValueDecision(nil)

	default:
		return PassDecision()
	}
}

// handleAsk resolves Ask against the reader environment. A stored value
// that is itself a Program is a lazy binding: it is evaluated once, via
// Store.lazyAsk's singleflight dedup, and the evaluated value is cached
// back into Env so sibling Asks (and concurrent tasks sharing this Store's
// lineage) observe the same result without re-running side effects. While
// the Program runs, Env holds a marker for the key, so an Ask of the same
// key from inside that evaluation panics with InterpreterInvariantError.
func handleAsk(st *CESKState, eff EffAsk) Decision {
	type lazyInFlight struct{}
	v, ok := st.Env[eff.Key]
	if !ok {
		return ErrorDecision(fmt.Errorf("doeff: unbound reader key %q", eff.Key))
	}
	if _, cycle := v.(lazyInFlight); cycle {
		panic(&InterpreterInvariantError{Reason: fmt.Sprintf("lazy Ask cycle on key %q", eff.Key)})
	}
	p, isProgram := v.(Program)
	if !isProgram {
		return ValueDecision(v)
	}
	st.Env[eff.Key] = lazyInFlight{}
	result, err, _ := st.Store.lazyAsk.Do(eff.Key, func() (any, error) {
		return st.evalToCompletion(p)
	})
	if err != nil {
		st.Env[eff.Key] = p
		return ErrorDecision(err)
	}
	st.Env[eff.Key] = result
	return ValueDecision(result)
}

// buildRetryProgram unrolls a Retry effect into nested Catch programs, one
// per remaining attempt, so the interpreter needs no dedicated RetryFrame.
// Each handler sleeps for the configured delay before the next attempt; a
// negative delay fails the Retry instead.
func buildRetryProgram(eff Retry, attempt int) Program {
	body := eff.Body
	if attempt >= eff.Max {
		return body
	}
	return DoPerform(EffCatch{
		Body: body,
		Handler: func(err error) Program {
			delay := eff.Delay.Fixed
			if eff.Delay.Strategy != nil {
				delay = eff.Delay.Strategy(attempt)
			}
			if delay < 0 {
				return DoPerform(Fail{Exc: fmt.Errorf("doeff: retry delay for attempt %d is negative (%v)", attempt, delay)})
			}
			time.Sleep(delay)
			return buildRetryProgram(eff, attempt+1)
		},
	})
}

// buildFirstSuccessProgram unrolls FirstSuccess into nested Catch attempts,
// tried one after another in order, keeping logs from failed attempts (see DESIGN.md's Open
// Question resolution: FirstSuccess never resets the log).
func buildFirstSuccessProgram(progs []Program) Program {
	if len(progs) == 0 {
		return DoPerform(Fail{Exc: fmt.Errorf("doeff: FirstSuccess given no programs")})
	}
	if len(progs) == 1 {
		return progs[0]
	}
	return DoPerform(EffCatch{
		Body: progs[0],
		Handler: func(error) Program {
			return buildFirstSuccessProgram(progs[1:])
		},
	})
}

func buildGraph(st *CESKState) Graph {
	g := Graph{}
	for i, h := range st.Handlers {
		label := ""
		if h.Meta != nil {
			label = h.Meta.Name
		}
		g.Nodes = append(g.Nodes, GraphNode{ID: fmt.Sprintf("handler-%d", i), Kind: "handler", Label: label})
	}
	return g
}

// defaultHandlers builds the handler stack installed at the bottom of every
// run, coreHandler at index 0 (the bottom) so user-installed WithHandler layers
// sit above it and can intercept before falling through.
func defaultHandlers(cfg *InterpreterConfig) []handlerEntry {
	return []handlerEntry{
		{Handler: coreHandler{}, Meta: &HandlerMeta{Name: "core"}, Scope: ScopeShared},
	}
}
