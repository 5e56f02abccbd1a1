// Package live provides the small dataflow graph that keeps derived views
// current: value cells that replay their latest value to new observers and
// combinators that recompute from the latest value of each input.
//
// Delivery is synchronous. Set returns after every observer has run, in the
// goroutine that called Set. Observers must not Set, or subscribe to, the
// cell that is currently delivering to them.
package live

import (
	"slices"
	"sync"
)

// Source is anything that pushes values to observers and replays the
// current one on subscription.
type Source[T any] interface {
	Subscribe(fn func(T)) (unsubscribe func())
}

// Cell holds a value and notifies observers whenever it is replaced.
type Cell[T any] struct {
	// deliver serializes Set and Subscribe so observers see values in Set
	// order and a replay can never land after a newer value.
	deliver sync.Mutex

	mu        sync.RWMutex
	value     T
	nextID    uint64
	observers map[uint64]func(T)
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:     initial,
		observers: make(map[uint64]func(T)),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies every observer in subscription order.
func (c *Cell[T]) Set(v T) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	c.value = v
	fns := c.snapshotObservers()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned function detaches fn; calling it more than once is harmless.
func (c *Cell[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.observers[id] = fn
	current := c.value
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Observers returns the number of attached observers.
func (c *Cell[T]) Observers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers)
}

// snapshotObservers copies observers in subscription order. Caller holds mu.
func (c *Cell[T]) snapshotObservers() []func(T) {
	ids := make([]uint64, 0, len(c.observers))
	for id := range c.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = c.observers[id]
	}
	return fns
}
