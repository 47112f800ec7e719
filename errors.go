// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import "fmt"

// Typed interpreter errors. Invariant violations follow the teacher's
// panic-for-invariant-violation style (a double-resumed one-shot
// continuation panics rather than returning an error): they are not meant
// to be caught by ordinary Catch/Safe handling, only by the run/async_run
// boundary, which recovers them into a RunResult.Err carrying the typed
// cause.

// UnhandledEffectError is raised when effect dispatch walks off the bottom
// of the handler stack (spec.md §3.4, §4.3).
type UnhandledEffectError struct {
	Effect Effect
}

func (e *UnhandledEffectError) Error() string {
	return fmt.Sprintf("doeff: unhandled effect %T", e.Effect)
}

// ContinuationStackOverflowError is raised when K exceeds the configured
// MaxStackDepth (spec.md §4.1, §6).
type ContinuationStackOverflowError struct {
	Depth int
	Limit int
}

func (e *ContinuationStackOverflowError) Error() string {
	return fmt.Sprintf("doeff: continuation stack depth %d exceeds limit %d", e.Depth, e.Limit)
}

// InterpreterInvariantError covers fatal, non-recoverable violations:
// resuming a one-shot continuation more than once, Delegate outside effect
// dispatch, a lazy-Ask cycle, AsyncEscape under Run, or an unrecognized
// Decision, Control, frame, Program node or Apply argument. A disallowed
// reentrant run is reported as InterpreterReentrancyError instead.
type InterpreterInvariantError struct {
	Reason string
}

func (e *InterpreterInvariantError) Error() string {
	return "doeff: interpreter invariant violated: " + e.Reason
}

// InterpreterReentrancyError is raised when AllowReentrancy is false and a
// nested run/async_run call is attempted from within a running
// interpreter (spec.md §6).
type InterpreterReentrancyError struct{}

func (e *InterpreterReentrancyError) Error() string {
	return "doeff: nested run call while reentrancy is disallowed"
}

// TaskCancelledError is injected into a task's control before its next
// reduction step after TaskCancel (spec.md §4.5, §5).
type TaskCancelledError struct {
	TaskID string
	// Cause chains a finalizer failure encountered while unwinding for
	// cancellation; the cancellation itself is always the reported cause,
	// never silently replaced (spec.md §5).
	Cause error
}

func (e *TaskCancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("doeff: task %s cancelled (finalizer error: %v)", e.TaskID, e.Cause)
	}
	return fmt.Sprintf("doeff: task %s cancelled", e.TaskID)
}

func (e *TaskCancelledError) Unwrap() error { return e.Cause }

// EffectFailure wraps an exception raised during effect handling with the
// offending effect, the host traceback, and a call-stack snapshot
// (spec.md §4.6, §7).
type EffectFailure struct {
	Cause     error
	Effect    Effect
	Traceback string
	CallStack []CallFrame
}

func (e *EffectFailure) Error() string {
	if e.Effect != nil {
		return fmt.Sprintf("doeff: effect %T failed: %v", e.Effect, e.Cause)
	}
	return fmt.Sprintf("doeff: %v", e.Cause)
}

func (e *EffectFailure) Unwrap() error { return e.Cause }

// Display produces a human-readable failure report naming the failed
// effect and the program call stack, innermost last (spec.md §7).
func (e *EffectFailure) Display(debug bool) string {
	s := e.Error()
	for _, f := range e.CallStack {
		s += fmt.Sprintf("\n  at %s (depth %d)", f.FuncName, f.Depth)
	}
	if debug && e.Traceback != "" {
		s += "\n" + e.Traceback
	}
	return s
}
