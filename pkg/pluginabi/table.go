// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginabi

import (
	"slices"
	"sync"
)

// Table is an arena of live instances indexed by handle.
//
// Handles start at 1 and are never reused, so a destroyed handle can not
// alias a newer instance. The zero value is ready to use.
type Table[T any] struct {
	mu   sync.Mutex
	last Handle
	live map[Handle]T
}

// Insert stores v and returns its new handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.live == nil {
		t.live = make(map[Handle]T)
	}
	t.last++
	t.live[t.last] = v
	return t.last
}

// Lookup returns the value stored under h.
func (t *Table[T]) Lookup(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.live[h]
	return v, ok
}

// Remove deletes h and returns the value it held. The second result is
// false when h was null, unknown, or already removed.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.live[h]
	if ok {
		delete(t.live, h)
	}
	return v, ok
}

// Len returns the number of live instances.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Drain removes every live instance and returns them in handle order.
func (t *Table[T]) Drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	handles := make([]Handle, 0, len(t.live))
	for h := range t.live {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	out := make([]T, 0, len(handles))
	for _, h := range handles {
		out = append(out, t.live[h])
	}
	clear(t.live)
	return out
}
