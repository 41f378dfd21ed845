package state

import "sync"

// Source is anything a Computed can derive from.
type Source[T any] interface {
	Get() T
}

// Computed is a read-only value derived from two sources. It recomputes
// whenever either source changes and notifies its own listeners only when
// the derived value differs from the previous one.
type Computed[T any] struct {
	mu      sync.RWMutex
	value   T
	compute func() T
	equal   func(a, b T) bool
	stops   []func()
	subs    listeners[T]
}

// Compute2 derives a value from a and b. listenA and listenB register a
// change callback on the respective source; Atom.Listen and Map.Listen both
// fit once adapted with Trigger. equal may be nil, in which case every
// recompute notifies.
func Compute2[A, B, T any](
	a Source[A], listenA func(func()) func(),
	b Source[B], listenB func(func()) func(),
	fn func(A, B) T,
	equal func(x, y T) bool,
) *Computed[T] {
	c := &Computed[T]{
		compute: func() T { return fn(a.Get(), b.Get()) },
		equal:   equal,
	}
	c.value = c.compute()
	c.stops = append(c.stops, listenA(c.refresh), listenB(c.refresh))
	return c
}

// Trigger adapts a typed Listen method into the untyped change callback
// Compute2 expects.
func Trigger[E any](listen func(func(E)) func()) func(func()) func() {
	return func(fn func()) func() {
		return listen(func(E) { fn() })
	}
}

func (c *Computed[T]) refresh() {
	c.mu.Lock()
	next := c.compute()
	if c.equal != nil && c.equal(c.value, next) {
		c.mu.Unlock()
		return
	}
	c.value = next
	c.mu.Unlock()
	c.subs.notify(next)
}

func (c *Computed[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Computed[T]) Listen(fn func(T)) func() {
	return c.subs.listen(fn)
}

func (c *Computed[T]) Subscribe() chan T {
	return c.subs.subscribe()
}

func (c *Computed[T]) Unsubscribe(ch chan T) {
	c.subs.unsubscribe(ch)
}

// Stop detaches the value from its sources. It keeps its last value.
func (c *Computed[T]) Stop() {
	c.mu.Lock()
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}
