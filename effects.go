// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import "time"

// Effect is an immutable leaf record carrying a kind tag and kind-specific
// payload. Effects contain no Program; programs passed as fields (e.g.
// EffCatch.Body) are full Program trees evaluated by the handler that accepts
// the effect, not by the effect itself.
type Effect interface {
	effectNode()
}

// --- Reader / Writer -------------------------------------------------

// EffAsk reads a key from the current reader environment. If the stored value
// is itself a Program (a lazy value), the reader handler forwards to the
// lazy-ask handler.
type EffAsk struct{ Key string }

func (EffAsk) effectNode() {}

// Local runs Body with EnvUpdate merged into the current environment for
// the scope of Body, restoring the previous environment afterward.
type Local struct {
	EnvUpdate map[string]any
	Body      Program
}

func (Local) effectNode() {}

// EffTell appends Msg to the writer log (__log__).
type EffTell struct{ Msg any }

func (EffTell) effectNode() {}

// EffListen runs Body and returns (value, log-slice-written-during-Body).
type EffListen struct{ Body Program }

func (EffListen) effectNode() {}

// Pair is the tuple type EffListen resolves to: Fst is Body's value, Snd is
// the slice of entries appended to the writer log while Body ran.
type Pair[A, B any] struct {
	Fst A
	Snd B
}

// --- State -------------------------------------------------------------

// EffGet reads a key from the store.
type EffGet struct{ Key string }

func (EffGet) effectNode() {}

// EffPut writes a key in the store.
type EffPut struct {
	Key   string
	Value any
}

func (EffPut) effectNode() {}

// EffModify applies Fn to the current value of Key and stores the result.
type EffModify struct {
	Key string
	Fn  func(any) any
}

func (EffModify) effectNode() {}

// AtomicGet reads Key under the key's semaphore, returning Default if Key is
// absent (the store is not written).
type AtomicGet struct {
	Key     string
	Default any
}

func (AtomicGet) effectNode() {}

// AtomicUpdate applies Fn to Key's value under the key's semaphore,
// seeding Default if absent, guaranteeing a race-free read-modify-write
// under the cooperative scheduler.
type AtomicUpdate struct {
	Key     string
	Fn      func(any) any
	Default any
}

func (AtomicUpdate) effectNode() {}

// --- Result / error handling -------------------------------------------

// Fail raises exc, aborting the computation until an EffCatch/Safe/Finally
// frame intervenes.
type Fail struct{ Exc error }

func (Fail) effectNode() {}

// EffCatch runs Body, diverting any failure into Handler at the failure
// point. Handler may return a recovery value/Program or re-Fail.
type EffCatch struct {
	Body    Program
	Handler func(error) Program
}

func (EffCatch) effectNode() {}

// Finally runs Finalizer on every exit path of Body (normal, error,
// cancellation, Transfer unwind) and then resumes/rethrows.
type Finally struct {
	Body      Program
	Finalizer Program
}

func (Finally) effectNode() {}

// Recover replaces a Body failure with Fallback (a value or a Program).
type Recover struct {
	Body     Program
	Fallback any
}

func (Recover) effectNode() {}

// RetryDelay configures Retry's backoff: either a fixed duration or a
// callback receiving the (1-based) attempt number and returning a delay.
// A strategy returning a negative duration is a user error.
type RetryDelay struct {
	Fixed    time.Duration
	Strategy func(attempt int) time.Duration
}

// Retry re-evaluates Body up to Max times with Delay between attempts; the
// last error surfaces if every attempt fails.
type Retry struct {
	Body  Program
	Max   int
	Delay RetryDelay
}

func (Retry) effectNode() {}

// Safe converts a Body failure into Result{Err: ...} rather than
// propagating it, without masking effect failures raised by handler
// dispatch itself.
type Safe struct{ Body Program }

func (Safe) effectNode() {}

// Result is the Ok/Err sum produced by Safe and consumed by Unwrap.
type Result struct {
	ok    bool
	value any
	err   error
}

// Ok constructs a successful Result.
func Ok(v any) Result { return Result{ok: true, value: v} }

// ErrResult constructs a failed Result.
func ErrResult(err error) Result { return Result{ok: false, err: err} }

// IsOk reports whether r represents success.
func (r Result) IsOk() bool { return r.ok }

// Value returns the success value (zero if Err).
func (r Result) Value() any { return r.value }

// Error returns the failure cause (nil if Ok).
func (r Result) Error() error { return r.err }

// Unwrap turns Ok(v) into Pure(v) and Err(e) into Fail(e).
type Unwrap struct{ Result Result }

func (Unwrap) effectNode() {}

// FirstSuccess runs the programs one after another, each but the last
// wrapped in a Catch that moves on to the next, and returns the first
// program's value that succeeds, or fails with the last error if every
// attempt fails. Logs from
// failed attempts are kept, not reset (see DESIGN.md Open Question log).
type FirstSuccess struct{ Progs []Program }

func (FirstSuccess) effectNode() {}

// --- Async / scheduling --------------------------------------------------

// Await suspends the current task until Awaitable completes.
type Await struct{ Awaitable Awaitable }

func (Await) effectNode() {}

// SpawnBackend selects how a spawned task's Body is executed.
type SpawnBackend int

const (
	// BackendThread runs the child on its own goroutine in the same process.
	BackendThread SpawnBackend = iota
	// BackendDaemon runs the child exactly like BackendThread; parent
	// completion does not cancel it.
	BackendDaemon
	// BackendPooled runs the child on a host worker-goroutine pool over a
	// snapshot store, for CPU-bound work.
	BackendPooled
	// BackendProcess runs the child exactly like BackendThread, in-process
	// on its own goroutine; nothing is serialized or executed externally.
	BackendProcess
	// BackendRay runs the child exactly like BackendThread, in-process on its
	// own goroutine; there is no distributed execution.
	BackendRay
)

// String renders a SpawnBackend for logs and metric labels.
func (b SpawnBackend) String() string {
	switch b {
	case BackendThread:
		return "thread"
	case BackendDaemon:
		return "daemon"
	case BackendPooled:
		return "pooled"
	case BackendProcess:
		return "process"
	case BackendRay:
		return "ray"
	default:
		return "unknown"
	}
}

// Spawn starts Body on Backend and returns an opaque Task handle. The zero
// Backend (BackendThread) is replaced by the run's configured default
// backend (see WithSpawnDefaultBackend).
type Spawn struct {
	Body    Program
	Backend SpawnBackend
}

func (Spawn) effectNode() {}

// Gather spawns each program, joins all, preserves input order, and fails
// fast on the first exception (cancelling the rest).
type Gather struct{ Progs []Program }

func (Gather) effectNode() {}

// GatherDict is Gather over a name->program map, recombined into a map.
type GatherDict struct{ Progs map[string]Program }

func (GatherDict) effectNode() {}

// Race returns the first program to complete and cancels the rest.
type Race struct{ Progs []Program }

func (Race) effectNode() {}

// CreatePromise allocates a new promise, optionally with a caller-chosen id.
type CreatePromise struct{ ID string }

func (CreatePromise) effectNode() {}

// CompletePromise satisfies a promise with a value.
type CompletePromise struct {
	ID    string
	Value any
}

func (CompletePromise) effectNode() {}

// FailPromise satisfies a promise with an error.
type FailPromise struct {
	ID  string
	Err error
}

func (FailPromise) effectNode() {}

// TaskJoin suspends until task completes, merging its store/log into the
// caller's on success or re-raising its failure.
type TaskJoin struct{ Task *Task }

func (TaskJoin) effectNode() {}

// TaskCancel sets task's cancel flag; a TaskCancelledError is injected
// before the task's next reduction step.
type TaskCancel struct{ Task *Task }

func (TaskCancel) effectNode() {}

// Thread spawns Body on the run's configured default backend and returns
// its Task handle without joining it. Strategy (a named execution strategy
// string, e.g. "isolated" or "shared") is carried but not read by
// coreHandler.
type Thread struct {
	Body     Program
	Strategy string
}

func (Thread) effectNode() {}

// --- Semaphore -----------------------------------------------------------

// CreateSemaphore registers key with the given permit count. Idempotent.
type CreateSemaphore struct {
	Key     string
	Permits int
}

func (CreateSemaphore) effectNode() {}

// AcquireSemaphore suspends the current task if no permits remain on key,
// FIFO ordered.
type AcquireSemaphore struct{ Key string }

func (AcquireSemaphore) effectNode() {}

// ReleaseSemaphore returns a permit to key, waking the oldest waiter.
type ReleaseSemaphore struct{ Key string }

func (ReleaseSemaphore) effectNode() {}

// --- Reflection ------------------------------------------------------

// ProgramCallStack returns the full user-visible call stack.
type ProgramCallStack struct{}

func (ProgramCallStack) effectNode() {}

// ProgramCallFrame returns the call frame at Depth (0 = innermost). A
// depth beyond the stack size is a regular user error, raisable via Fail.
type ProgramCallFrame struct{ Depth int }

func (ProgramCallFrame) effectNode() {}

// Snapshot returns a Graph with one "handler" node per installed handler,
// bottom (coreHandler) first, and no edges (see trace.go).
type Snapshot struct{}

func (Snapshot) effectNode() {}

// --- Control -----------------------------------------------------------

// Pass is a handler's declaration that it does not handle the current
// effect; dispatch continues to the next handler down.
type Pass struct{}

func (Pass) effectNode() {}

// --- Dependency injection (supplemented from original_source/doeff/core.py) --

// Dep resolves a value of the given type-key from a small type-keyed
// registry in the store, distinct from the string-keyed reader
// environment EffAsk reads from.
type Dep struct{ Type string }

func (Dep) effectNode() {}

// --- Miscellaneous store-adjacent effects (§6 constructor list) --------

// MemoGet reads a previously memoized value for key from __memo__.
type MemoGet struct{ Key string }

func (MemoGet) effectNode() {}

// MemoSet stores a memoized value for key in __memo__.
type MemoSet struct {
	Key   string
	Value any
}

func (MemoSet) effectNode() {}

// CacheGet reads key from the persistent cache backend (see cache.go).
type CacheGet struct{ Key string }

func (CacheGet) effectNode() {}

// CacheSet writes key to the persistent cache backend.
type CacheSet struct {
	Key   string
	Value []byte
}

func (CacheSet) effectNode() {}

// Annotate records a key/value pair in the interpreter state against the
// innermost call-stack depth; nothing is recorded when the call stack is
// empty. The annotations are not returned by ProgramCallStack,
// ProgramCallFrame, DoGetTrace or Snapshot.
type Annotate struct {
	Key   string
	Value any
}

func (Annotate) effectNode() {}

// Step is a no-op marker effect: coreHandler resolves it to nil and does
// nothing else (it does not yield the goroutine).
type Step struct{}

func (Step) effectNode() {}

// IO runs Fn for its side effect and returns its result; failures surface
// as a regular Fail.
type IO struct{ Fn func() (any, error) }

func (IO) effectNode() {}

// Print writes Args to stdout (program output, per spec.md §6 — distinct
// from stderr profiling output).
type Print struct{ Args []any }

func (Print) effectNode() {}
