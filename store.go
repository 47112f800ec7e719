// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Reserved store key prefixes/names (spec.md §3.5, §6). User code must not
// write to names beginning with "__".
const (
	keyLog           = "__log__"
	keyMemo          = "__memo__"
	keyCacheStorage  = "__cache_storage__"
	keyAtomicState   = "__atomic_state__"
	keyInterpreter   = "__interpreter__"
)

// BoundedLog is an append-only list of writer entries with an optional cap.
// The cap is preserved across Copy/SpawnEmpty/Slice, trimming the oldest
// entries when exceeded (spec.md §3.5).
type BoundedLog struct {
	entries    []any
	maxEntries int // 0 means unbounded
}

// NewBoundedLog creates a log with the given entry cap (0 = unbounded).
func NewBoundedLog(maxEntries int) *BoundedLog {
	return &BoundedLog{maxEntries: maxEntries}
}

// Append adds an entry, trimming the oldest entry if the cap is exceeded.
func (l *BoundedLog) Append(v any) {
	l.entries = append(l.entries, v)
	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
}

// Len reports the current number of entries.
func (l *BoundedLog) Len() int { return len(l.entries) }

// Slice returns entries[start:] as a fresh slice.
func (l *BoundedLog) Slice(start int) []any {
	if start > len(l.entries) {
		start = len(l.entries)
	}
	out := make([]any, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// All returns every entry as a fresh slice.
func (l *BoundedLog) All() []any { return l.Slice(0) }

// Copy returns a deep-enough copy preserving the cap, for Spawn snapshots.
func (l *BoundedLog) Copy() *BoundedLog {
	return &BoundedLog{entries: append([]any(nil), l.entries...), maxEntries: l.maxEntries}
}

// SpawnEmpty returns a fresh, empty log with the same cap, used for a
// child task's private log at Spawn time (spec.md §4.5: "log is empty").
func (l *BoundedLog) SpawnEmpty() *BoundedLog {
	return &BoundedLog{maxEntries: l.maxEntries}
}

// Concat appends other's entries after this log's entries, respecting the
// cap, for TaskJoin's "logs concatenated in spawn order" rule.
func (l *BoundedLog) Concat(other *BoundedLog) {
	for _, e := range other.entries {
		l.Append(e)
	}
}

// Store is the keyed mapping from string keys to arbitrary host values
// that backs Get/Put/Modify/Ask, plus the three reserved slots (spec.md
// §3.5). Per-task stores are snapshots taken on Spawn; TaskJoin merges
// user keys with last-writer-wins and concatenates logs in spawn order.
//
// __memo__ is kept as a shared pointer across snapshots (ScopeShared, see
// DESIGN.md's Open Question resolution), so writes are visible to every
// task immediately — there is no merge step for it at join.
type Store struct {
	mu     sync.Mutex
	values map[string]any
	log    *BoundedLog
	memo   *sharedMemo
	cache  *Cache // nil unless a persistent cache backend is configured

	// lazyAsk deduplicates concurrent resolution of the same lazy-Ask key
	// across tasks sharing this store's lineage, guaranteeing the "single
	// evaluation" property of a lazy environment value (spec.md §8 seed
	// scenario, §9 "cyclic lazy-env graphs").
	lazyAsk *singleflight.Group

	semaphores *semaphoreTable
	promises   *promiseTable
}

// sharedMemo is the process-wide memoization table, shared by reference
// across every task's Store in a run (ScopeShared).
type sharedMemo struct {
	mu      sync.Mutex
	entries map[string]any
}

func newSharedMemo() *sharedMemo { return &sharedMemo{entries: make(map[string]any)} }

func (m *sharedMemo) get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *sharedMemo) set(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = v
}

// NewStore creates an empty store with the given log cap.
func NewStore(maxLogEntries int) *Store {
	return &Store{
		values:     make(map[string]any),
		log:        NewBoundedLog(maxLogEntries),
		memo:       newSharedMemo(),
		semaphores: newSemaphoreTable(),
		promises:   newPromiseTable(),
		lazyAsk:    new(singleflight.Group),
	}
}

// Get reads key; ok is false if key has never been written.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Put writes key unconditionally.
func (s *Store) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Modify reads key (defaulting to nil), applies fn, writes and returns the
// new value.
func (s *Store) Modify(key string, fn func(any) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	nv := fn(s.values[key])
	s.values[key] = nv
	return nv
}

// Log returns the store's writer log.
func (s *Store) Log() *BoundedLog { return s.log }

// Memo reads a memoized value for key.
func (s *Store) Memo(key string) (any, bool) { return s.memo.get(key) }

// SetMemo stores a memoized value for key.
func (s *Store) SetMemo(key string, v any) { s.memo.set(key, v) }

// Snapshot returns a child store for Spawn: a new map holding the same
// user-visible values (the values themselves are not deep-copied), an empty
// log (same cap), and the memo/cache shared by reference (spec.md §4.5).
func (s *Store) Snapshot() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	child := &Store{
		values:     make(map[string]any, len(s.values)),
		log:        s.log.SpawnEmpty(),
		memo:       s.memo,
		cache:      s.cache,
		semaphores: s.semaphores,
		promises:   s.promises,
		lazyAsk:    s.lazyAsk,
	}
	for k, v := range s.values {
		child.values[k] = v
	}
	return child
}

// Merge folds child's user-visible values into s with last-writer-wins and
// concatenates child's log after s's log, for TaskJoin (spec.md §3.5,
// §4.5). memo/cache need no merge step since they are shared by reference.
func (s *Store) Merge(child *Store) {
	child.mu.Lock()
	childValues := make(map[string]any, len(child.values))
	for k, v := range child.values {
		childValues[k] = v
	}
	child.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range childValues {
		s.values[k] = v
	}
	s.log.Concat(child.log)
}

// Keys returns a snapshot of every key in the value map, including
// "__dep__"-prefixed ones; the log, memo and cache are not part of it.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
