package state

import (
	"slices"
	"sync"
)

// subscriberBuffer is the channel capacity handed out by Subscribe. Events
// beyond it are dropped for that subscriber rather than blocking the writer.
const subscriberBuffer = 16

// listeners fans a value out to synchronous callbacks and buffered channels.
// It carries its own lock so that dispatch never runs under the owning
// container's data lock.
type listeners[E any] struct {
	mu     sync.Mutex
	nextID int
	funcs  map[int]func(E)
	chans  []chan E
}

func (l *listeners[E]) listen(fn func(E)) func() {
	l.mu.Lock()
	if l.funcs == nil {
		l.funcs = make(map[int]func(E))
	}
	id := l.nextID
	l.nextID++
	l.funcs[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.funcs, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners[E]) subscribe() chan E {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := make(chan E, subscriberBuffer)
	l.chans = append(l.chans, ch)
	return ch
}

func (l *listeners[E]) unsubscribe(ch chan E) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.chans {
		if c == ch {
			close(c)
			l.chans = append(l.chans[:i], l.chans[i+1:]...)
			return
		}
	}
}

// notify runs callbacks in registration order, then offers the event to every
// channel without blocking. Callbacks run outside the lock so they may
// register or cancel listeners themselves.
func (l *listeners[E]) notify(evt E) {
	l.mu.Lock()
	ids := make([]int, 0, len(l.funcs))
	for id := range l.funcs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(E), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.funcs[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.chans {
		select {
		case ch <- evt:
		default:
			// drop on slow subscriber
		}
	}
}
