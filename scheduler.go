// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Task is an opaque handle to a spawned computation (spec.md §4.5). Tasks
// are backed by a real goroutine rather than a single-threaded cooperative
// scheduler; BackendPooled additionally bounds concurrency via errgroup.
type Task struct {
	ID        string
	backend   SpawnBackend
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once

	mu        sync.Mutex
	value     any
	err       error
	childSt   *CESKState
}

// newTask allocates a Task with a fresh uuid, grounding task identity in a
// real generator rather than a counter (SPEC_FULL.md DOMAIN STACK: uuid).
func newTask(backend SpawnBackend) *Task {
	return &Task{ID: uuid.NewString(), backend: backend, done: make(chan struct{})}
}

func (t *Task) finish(value any, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.value, t.err = value, err
		t.mu.Unlock()
		close(t.done)
	})
}

// spawnTask starts body on a snapshot of parent's store, in the requested
// backend, and returns immediately with its Task handle (spec.md §4.5).
func spawnTask(parent *CESKState, body Program, backend SpawnBackend) *Task {
	t := newTask(backend)
	child := &CESKState{
		Control:  programControl{Program: body},
		Env:      cloneEnv(parent.Env),
		Store:    parent.Store.Snapshot(),
		Handlers: cloneHandlerEntries(parent.Handlers),
		Config:   parent.Config,
		Logger:   parent.Logger,
	}
	t.childSt = child
	recordTaskSpawned(backend.String())

	run := func() {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					recordTaskCompleted("error")
					t.finish(nil, err)
					return
				}
				recordTaskCompleted("error")
				t.finish(nil, &InterpreterInvariantError{Reason: "panic in spawned task"})
			}
		}()
		cancelInjected := false
		for {
			if t.cancelled.Load() {
				ec, isErr := child.Control.(errorControl)
				if _, isCancel := ec.Err.(*TaskCancelledError); !isErr || !isCancel {
					// An error raised after the cancellation was injected can
					// only be a finalizer failure; keep it as the Cause.
					var cause error
					if isErr && cancelInjected {
						cause = ec.Err
					}
					child.Control = errorControl{Err: &TaskCancelledError{TaskID: t.ID, Cause: cause}}
					cancelInjected = true
				}
			}
			done, result := child.step()
			if done {
				if result.IsOk() {
					recordTaskCompleted("ok")
					t.finish(result.Value(), nil)
				} else {
					outcome := "error"
					if _, cancelled := result.Err().(*TaskCancelledError); cancelled {
						outcome = "cancelled"
					}
					recordTaskCompleted(outcome)
					t.finish(nil, result.Err())
				}
				return
			}
		}
	}

	switch backend {
	case BackendPooled:
		pooledGroup.Go(func() error { run(); return nil })
	default:
		go run()
	}
	return t
}

// pooledGroup bounds BackendPooled concurrency via errgroup's SetLimit,
// grounding the "pooled" backend in the domain-stack's errgroup dependency
// rather than an unbounded goroutine-per-task fan-out.
var pooledGroup = newPooledGroup()

func newPooledGroup() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(64)
	return g
}

// joinTask blocks the calling goroutine until t completes, merging its
// store into parent's on success (spec.md §4.5, §3.5).
func joinTask(parent *CESKState, t *Task) (any, error) {
	<-t.done
	t.mu.Lock()
	value, err := t.value, t.err
	t.mu.Unlock()
	if err == nil {
		parent.Store.Merge(t.childSt.Store)
	}
	return value, err
}

// cancelTask marks t cancelled; the running task observes this at its next
// step and unwinds via TaskCancelledError (spec.md §5).
func cancelTask(t *Task) {
	t.cancelled.Store(true)
}

// gatherTasks spawns every program, joins all in input order, and cancels
// the remainder on the first failure (spec.md: "Gather ... fails fast").
func gatherTasks(st *CESKState, progs []Program) ([]any, error) {
	tasks := make([]*Task, len(progs))
	for i, p := range progs {
		tasks[i] = spawnTask(st, p, BackendThread)
	}
	results := make([]any, len(progs))
	var firstErr error
	for i, t := range tasks {
		v, err := joinTask(st, t)
		if err != nil && firstErr == nil {
			firstErr = err
			for _, other := range tasks[i+1:] {
				cancelTask(other)
			}
		}
		results[i] = v
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// promiseState is a single-assignment future created by CreatePromise and
// settled exactly once by CompletePromise/FailPromise, which close done.
// No built-in effect waits on a promise.
type promiseState struct {
	done     chan struct{}
	once     sync.Once
	value    any
	err      error
	resolved atomic.Bool
}

// promiseTable is the process-wide registry of named promises, shared by
// reference across every Store snapshot (ScopeShared).
type promiseTable struct {
	mu    sync.Mutex
	table map[string]*promiseState
}

func newPromiseTable() *promiseTable {
	return &promiseTable{table: make(map[string]*promiseState)}
}

func (t *promiseTable) getOrCreate(id string) *promiseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.table[id]
	if !ok {
		p = &promiseState{done: make(chan struct{})}
		t.table[id] = p
	}
	return p
}

func (p *promiseState) settle(value any, err error) {
	p.once.Do(func() {
		p.value, p.err = value, err
		p.resolved.Store(true)
		close(p.done)
	})
}

// handlePromise implements CreatePromise/CompletePromise/FailPromise.
func handlePromise(st *CESKState, e Effect) Decision {
	switch eff := e.(type) {
	case CreatePromise:
		id := eff.ID
		if id == "" {
			id = uuid.NewString()
		}
		st.Store.promises.getOrCreate(id)
		return ValueDecision(id)
	case CompletePromise:
		st.Store.promises.getOrCreate(eff.ID).settle(eff.Value, nil)
		return ValueDecision(nil)
	case FailPromise:
		st.Store.promises.getOrCreate(eff.ID).settle(nil, eff.Err)
		return ValueDecision(nil)
	default:
		return PassDecision()
	}
}

// raceTasks spawns every program and returns the first to complete
// (success or failure), cancelling the rest.
func raceTasks(st *CESKState, progs []Program) (any, error) {
	tasks := make([]*Task, len(progs))
	for i, p := range progs {
		tasks[i] = spawnTask(st, p, BackendThread)
	}
	type outcome struct {
		value any
		err   error
	}
	results := make(chan outcome, len(tasks))
	for _, t := range tasks {
		t := t
		go func() {
			v, err := joinTask(st, t)
			results <- outcome{v, err}
		}()
	}
	first := <-results
	for _, t := range tasks {
		cancelTask(t)
	}
	return first.value, first.err
}
