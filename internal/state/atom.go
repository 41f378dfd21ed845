package state

import "sync"

// Atom holds a single observable value. Writing the value it already holds
// is a no-op and notifies nobody.
type Atom[T comparable] struct {
	mu    sync.RWMutex
	value T
	subs  listeners[T]
}

// NewAtom returns an atom holding initial.
func NewAtom[T comparable](initial T) *Atom[T] {
	return &Atom[T]{value: initial}
}

func (a *Atom[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Set replaces the value and notifies listeners with the new one.
func (a *Atom[T]) Set(v T) {
	a.mu.Lock()
	if a.value == v {
		a.mu.Unlock()
		return
	}
	a.value = v
	a.mu.Unlock()
	a.subs.notify(v)
}

// Listen registers fn to run synchronously on every change. The returned
// func cancels the registration.
func (a *Atom[T]) Listen(fn func(T)) func() {
	return a.subs.listen(fn)
}

func (a *Atom[T]) Subscribe() chan T {
	return a.subs.subscribe()
}

func (a *Atom[T]) Unsubscribe(ch chan T) {
	a.subs.unsubscribe(ch)
}
