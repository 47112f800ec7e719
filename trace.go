// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

// TraceFrameKind tags an EffectStackFrame's origin (spec.md §4.6).
type TraceFrameKind int

const (
	// TraceKleisliCall marks a DoFlatMap/DoMap binder invocation.
	TraceKleisliCall TraceFrameKind = iota
	// TraceEffectYield marks a DoPerform crossing into dispatch.
	TraceEffectYield
	// TraceHandlerBoundary marks a WithHandler scope entry/exit.
	TraceHandlerBoundary
	// TraceSpawnBoundary marks a Spawn crossing into a child task.
	TraceSpawnBoundary
)

func (k TraceFrameKind) String() string {
	switch k {
	case TraceKleisliCall:
		return "kleisli-call"
	case TraceEffectYield:
		return "effect-yield"
	case TraceHandlerBoundary:
		return "handler-boundary"
	case TraceSpawnBoundary:
		return "spawn-boundary"
	default:
		return "unknown"
	}
}

// EffectStackFrame is one entry of the recorded effect stack trace exposed
// by DoGetTrace, distinct from the user-level ProgramCallStack (which only
// tracks named Apply calls).
type EffectStackFrame struct {
	Kind  TraceFrameKind
	Label string
	Depth int
}

// buildTrace walks the live K, producing one EffectStackFrame per bind or
// map frame and per handler boundary, innermost first; other frames are
// skipped.
func (st *CESKState) buildTrace() []EffectStackFrame {
	out := make([]EffectStackFrame, 0, len(st.K)+len(st.Handlers))
	for i := len(st.K) - 1; i >= 0; i-- {
		switch f := st.K[i].(type) {
		case KBindFrame:
			label := ""
			if f.Meta != nil {
				label = f.Meta.FuncName
			}
			out = append(out, EffectStackFrame{Kind: TraceKleisliCall, Label: label, Depth: len(out)})
		case KMapFrame:
			label := ""
			if f.Meta != nil {
				label = f.Meta.FuncName
			}
			out = append(out, EffectStackFrame{Kind: TraceKleisliCall, Label: label, Depth: len(out)})
		case HandlerFrame:
			label := ""
			if f.HandlerMeta != nil {
				label = f.HandlerMeta.Name
			}
			out = append(out, EffectStackFrame{Kind: TraceHandlerBoundary, Label: label, Depth: len(out)})
		}
	}
	return out
}

// GraphNode is one vertex of a Snapshot effect's topology report: a task, a
// handler installation, or a semaphore, identified by a stable string ID.
type GraphNode struct {
	ID    string
	Kind  string // "task", "handler", "semaphore"
	Label string
}

// GraphEdge connects two GraphNode IDs, e.g. a spawn-parent edge or a
// handler-installed-by-task edge.
type GraphEdge struct {
	From string
	To   string
	Kind string // "spawned", "installed", "waits-on"
}

// Graph is the topology snapshot returned by the Snapshot effect (spec.md
// §4.6), a lightweight analogue of a dependency graph rather than a full
// visualization structure.
type Graph struct {
	Nodes []GraphNode
	Edges []GraphEdge
}
