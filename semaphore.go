// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import "sync"

// semaphoreState is a FIFO counting semaphore. Acquire blocks the calling
// task's goroutine directly rather than suspending through the CESK
// frame stack, since tasks are backed by real goroutines (scheduler.go).
// The permit count and waiter queue are guarded by a sync.Mutex, and a
// blocked acquirer waits on its own channel.
type semaphoreState struct {
	mu      sync.Mutex
	permits int
	waiters []chan struct{}
}

// semaphoreTable is the process-wide registry of named semaphores, held by
// reference in Store so it is shared across every snapshot (ScopeShared).
type semaphoreTable struct {
	mu    sync.Mutex
	table map[string]*semaphoreState
}

func newSemaphoreTable() *semaphoreTable {
	return &semaphoreTable{table: make(map[string]*semaphoreState)}
}

func (t *semaphoreTable) get(key string) *semaphoreState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.table[key]
	if !ok {
		s = &semaphoreState{}
		t.table[key] = s
	}
	return s
}

// create registers key with permits, idempotent if already created (spec.md
// §4.4: a repeated CreateSemaphore with the same key is a no-op).
func (t *semaphoreTable) create(key string, permits int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.table[key]; ok {
		return
	}
	t.table[key] = &semaphoreState{permits: permits}
}

// acquire blocks the calling goroutine until a permit on key is available,
// granted in FIFO order among waiters.
func (t *semaphoreTable) acquire(key string) {
	s := t.get(key)
	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		return
	}
	wait := make(chan struct{})
	s.waiters = append(s.waiters, wait)
	s.mu.Unlock()
	<-wait
}

// release returns a permit to key, waking the oldest waiter if any.
func (t *semaphoreTable) release(key string) {
	s := t.get(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(w)
		return
	}
	s.permits++
}
