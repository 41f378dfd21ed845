package state

import (
	"maps"
	"sync"
)

const (
	EventSet    = "set"
	EventUpdate = "update"
)

// MapEvent describes one change to a Map. For EventSet, Key is empty and
// Entries holds the whole new mapping; otherwise Key names the entry that
// changed and Value carries its new value.
type MapEvent[V any] struct {
	Type    string
	Key     string
	Value   V
	Entries map[string]V
}

// Map is an observable string-keyed mapping. Writers never mutate a mapping
// that has been handed out: every write installs a fresh one, so the result
// of Get is a stable read-only snapshot.
type Map[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	subs    listeners[MapEvent[V]]
}

// NewMap returns a map seeded with a copy of initial.
func NewMap[V any](initial map[string]V) *Map[V] {
	entries := make(map[string]V, len(initial))
	maps.Copy(entries, initial)
	return &Map[V]{entries: entries}
}

// Get returns the current mapping. Callers must treat it as read-only.
func (m *Map[V]) Get() map[string]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries
}

func (m *Map[V]) Lookup(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Set swaps in a copy of all as the whole mapping and fires one EventSet.
func (m *Map[V]) Set(all map[string]V) {
	next := make(map[string]V, len(all))
	maps.Copy(next, all)

	m.mu.Lock()
	m.entries = next
	m.mu.Unlock()

	m.subs.notify(MapEvent[V]{Type: EventSet, Entries: next})
}

// SetKey replaces exactly one entry and fires one EventUpdate for it.
func (m *Map[V]) SetKey(key string, v V) {
	m.mu.Lock()
	next := make(map[string]V, len(m.entries)+1)
	maps.Copy(next, m.entries)
	next[key] = v
	m.entries = next
	m.mu.Unlock()

	m.subs.notify(MapEvent[V]{Type: EventUpdate, Key: key, Value: v, Entries: next})
}

// Listen registers fn to run synchronously after every change.
func (m *Map[V]) Listen(fn func(MapEvent[V])) func() {
	return m.subs.listen(fn)
}

func (m *Map[V]) Subscribe() chan MapEvent[V] {
	return m.subs.subscribe()
}

func (m *Map[V]) Unsubscribe(ch chan MapEvent[V]) {
	m.subs.unsubscribe(ch)
}
