// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import "sync/atomic"

// KFrame is the marker interface for K continuation-stack entries: a pure
// marker, dispatched on by type switch rather than by tag field.
//
// Unlike an immutable frame chain, K is represented as a
// Go slice (see interpreter.go's CESKState.K) with the top at the end of
// the slice, because Transfer (§4.3) needs to truncate and re-splice an
// arbitrary prefix at runtime — a chain of immutable cons-cells would make
// that an O(n) rebuild on every Transfer instead of a slice re-slice.
type KFrame interface {
	frameNode()
}

// KBindFrame replaces control with Binder(v) under SavedEnv when the current
// value v surfaces.
type KBindFrame struct {
	Binder   func(any) Program
	SavedEnv map[string]any
	Meta     *CallMeta
}

func (KBindFrame) frameNode() {}

// KMapFrame replaces control with Pure(Mapper(v)).
type KMapFrame struct {
	Mapper func(any) any
	Meta   *CallMeta
}

func (KMapFrame) frameNode() {}

// HandlerFrame marks where a WithHandler's scope ends; popping it removes
// Handler from the handler stack.
type HandlerFrame struct {
	Handler     EffectHandler
	HandlerMeta *HandlerMeta
}

func (HandlerFrame) frameNode() {}

// GatherFrame drives a Gather: starts the next program in Remaining when
// the current one completes, accumulating into Collected; when Remaining
// is empty it emits Collected as the final value.
type GatherFrame struct {
	Remaining []Program
	Collected []any
	SavedEnv  map[string]any
}

func (GatherFrame) frameNode() {}

// ListenFrame extracts the log slice written since LogStartIndex when the
// body surfaces a value.
type ListenFrame struct {
	LogStartIndex int
}

func (ListenFrame) frameNode() {}

// LocalFrame restores the reader environment to RestoreEnv when the body
// surfaces.
type LocalFrame struct {
	RestoreEnv map[string]any
}

func (LocalFrame) frameNode() {}

// SafeFrame wraps a surfacing value in Ok, or an in-flight error in Err.
type SafeFrame struct {
	SavedEnv map[string]any
}

func (SafeFrame) frameNode() {}

// FinallyFrame runs Finalizer on every exit path (normal, error,
// cancellation, Transfer unwind) before propagating.
type FinallyFrame struct {
	Finalizer Program
}

func (FinallyFrame) frameNode() {}

// CallFrame is pure metadata: it exists solely for traceback and
// reflection, carrying no reduction behavior.
type CallFrame struct {
	FuncName  string
	Args      []any
	Kwargs    map[string]any
	Depth     int
	CreatedAt int64 // unix nanos, stamped by the caller (interpreter avoids time.Now() internally)
}

func (CallFrame) frameNode() {}

// InterceptFrame carries Transforms for effects bubbling up through it.
// Effect dispatch does not consult it and no built-in effect pushes one;
// when a value reaches it, the step loop pops it and passes the value on.
type InterceptFrame struct {
	Transforms []func(Effect) Effect
}

func (InterceptFrame) frameNode() {}

// catchFrame is pushed internally by the Catch effect's dispatch (§4.1 rule
// 9: "If CatchFrame (pushed by the Catch effect handler), invoke the
// handler with the exception"). It is not part of the public frame
// vocabulary in §3.3 but realizes the rule literally.
type catchFrame struct {
	Handler func(error) Program
}

func (catchFrame) frameNode() {}

// Continuation is an opaque, one-shot reified continuation: a snapshot of
// K and the handler-stack prefix taken at DoCreateContinuation time, plus
// an installation cookie that Resume/Transfer/ResumeContinuation consumes
// exactly once.
//
// Modeled the same way spec.md §9 describes: "an index into the
// interpreter's continuation-frame arena plus an installation cookie" —
// here the arena is simply the snapshotted slices held by value, and the
// cookie is the atomic consumed flag.
type Continuation struct {
	id       uint64
	k        []KFrame
	handlers []handlerEntry
	env      map[string]any
	consumed atomic.Uintptr
}

// tryConsume marks the continuation as consumed, returning false if it was
// already consumed by a prior Resume/Transfer/ResumeContinuation.
func (c *Continuation) tryConsume() bool {
	return c.consumed.Add(1) == 1
}

// Consumed reports whether this continuation has already been
// resumed/transferred/discarded.
func (c *Continuation) Consumed() bool {
	return c.consumed.Load() != 0
}
