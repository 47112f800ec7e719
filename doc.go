// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package doeff implements an algebraic-effects virtual machine: programs
// are built as a [Program] AST and evaluated by an iterative CESK-style
// abstract machine ([CESKState]) rather than by direct Go function calls,
// so that effects, continuations, and handlers are first-class values a
// program can inspect, capture, and resume.
//
// # Design Philosophy
//
// doeff provides:
//   - A small, composable Program AST (construction allocates; evaluation
//     is a flat trampoline loop, not recursive Go calls)
//   - Effects as plain data ([Effect]), dispatched to a stack of
//     [EffectHandler] values rather than hard-wired into the interpreter
//   - One-shot, reifiable continuations ([Continuation]) that can be
//     captured, stored, and resumed later, including across Async boundaries
//
// # Building Programs
//
// Programs are values, built with the Do* constructors rather than run
// directly:
//
//   - [DoPure]: Lift a value into a Program
//   - [DoMap]: Transform a Program's result
//   - [DoFlatMap]: Sequence two Programs, the second chosen from the first's result
//   - [DoThen]: Sequence, discarding the first result
//   - [DoEval]: Evaluate a subprogram and yield its value
//   - [DoApply]: Call a Go function against resolved [Arg] values, named via [CallMeta]
//   - [DoPerform]: Suspend on an [Effect], handled by the current handler stack
//   - [DoWithHandler]: Install an [EffectHandler] around a Program, named via [HandlerMeta]
//   - [DoGetContinuation]: Reify the current continuation as a [*Continuation] value
//   - [DoResumeContinuation]: Resume a captured continuation with a value
//   - [DoAsyncEscape]: Suspend until an [Awaitable] completes (only under [AsyncRun])
//
// # Running Programs
//
//   - [Run]: Evaluate a Program synchronously to a [RunResult]
//   - [AsyncRun]: Evaluate a Program that may perform [DoAsyncEscape]
//   - [RunOption]: Functional options (see config.go) customizing an [InterpreterConfig]
//   - [LoadFileConfig]: Load RunOption overrides from a YAML config file
//
// Run and AsyncRun never let an interpreter-internal panic (double-resume,
// stack overflow, an effect that walked off the handler stack) escape to
// the caller: both recover internally and report the failure as a
// [RunResult] with IsOk() == false.
//
// # Effects and Handlers
//
// An [Effect] is a marker-interface value performed with [DoPerform]. An
// [EffectHandler] inspects a dispatched Effect and returns a [Decision]:
//
//   - [Resume]: Resume the captured continuation with a value
//   - [ValueDecision]: Resolve the effect directly with a value, without resuming explicitly
//   - [ErrorDecision]: Enter the error-unwind path
//   - [PassDecision]: Delegate to the next handler down the stack
//
// coreHandler is always installed at the bottom of the handler stack and
// implements the standard effect vocabulary: state ([EffGet], [EffPut],
// [EffModify]), reader ([EffAsk], [Local]), writer ([EffTell], [EffListen]),
// error/control ([Fail], [Recover], [Safe], [Unwrap], [Finally], [Retry],
// [FirstSuccess]), structured concurrency ([Spawn], [TaskJoin], [TaskCancel],
// [Gather], [GatherDict], [Race], [Thread]), promises ([CreatePromise],
// [CompletePromise], [FailPromise]), semaphores ([CreateSemaphore],
// [AcquireSemaphore], [ReleaseSemaphore]), atomics ([AtomicGet],
// [AtomicUpdate]), memoization and caching ([MemoGet], [MemoSet],
// [CacheGet], [CacheSet]), dependency lookup ([Dep]), and interpreter
// introspection ([Snapshot], [ProgramCallFrame], [Annotate], [IO], [Print],
// [Step]).
//
// # Store
//
// [Store] holds the interpreter's mutable state: user key/value bindings,
// a bounded [BoundedLog] for EffTell/EffListen, a shared memoization table,
// a shared [Cache] handle, a shared semaphore table, and a shared promise
// table. [Store.Snapshot] isolates user-visible values for a spawned task
// while still sharing memo/cache/semaphore/promise state by reference;
// [Store.Merge] folds a completed snapshot's values and log back into its
// parent on join, last write wins.
//
// # Structured Concurrency
//
// [Spawn] starts a [Task] under a chosen [SpawnBackend] (thread, daemon,
// pooled, process, ray); [TaskJoin] merges the child's Store back into the
// caller on success. [Gather]/[GatherDict]/[Race] compose many Programs
// concurrently. [CreatePromise]/[CompletePromise]/[FailPromise] provide a
// single-assignment future independent of any one task.
//
// # Observability
//
// [InitMetrics] registers a Prometheus collector set (step counts, effect
// dispatch counts, task and cache counters, continuation/handler-stack
// depth histograms); [MetricsHandler] exposes them over HTTP. Structured
// step tracing uses zerolog, enabled via [WithProfiling]. The
// DOEFF_DISABLE_PROFILE environment variable turns it off in the default
// configuration, before any RunOption is applied.
//
// # Command-Line Driver
//
// cmd/doeffctl runs one of a few built-in demo Programs with configuration
// taken from flags and the environment (it does not load a YAML file) and
// reports the resulting [RunResult]; its serve command exposes the metrics
// over HTTP.
package doeff
