// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authstate

import (
	"slices"
	"sync"
)

// Cell is a single owned value with subscribers.  Every Store is delivered
// to every subscriber synchronously, in registration order, before Store
// returns.  Stores are delivered one at a time, so subscribers see
// transitions in the order they were stored.
//
// A subscriber may Load the cell, but must not Store to it.
type Cell[T any] struct {
	// notify serializes Store, so deliveries never interleave.
	notify sync.Mutex

	mu     sync.Mutex
	value  T
	subs   []*subscriber[T]
	closed bool
	done   chan struct{}
}

type subscriber[T any] struct {
	fn func(T)
}

// NewCell returns a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		done:  make(chan struct{}),
	}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Store replaces the value and delivers it to the subscribers.  It returns
// false, and changes nothing, once the cell is closed.
func (c *Cell[T]) Store(v T) bool {
	c.notify.Lock()
	defer c.notify.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.value = v
	subs := slices.Clone(c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
	return true
}

// Subscribe registers fn for every following Store.  The returned func
// unregisters it and may be called more than once.  Subscribing to a closed
// cell is a no-op.
func (c *Cell[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || fn == nil {
		return func() {}
	}
	s := &subscriber[T]{fn: fn}
	c.subs = append(c.subs, s)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(e *subscriber[T]) bool { return e == s })
	}
}

// Close releases the subscribers.  Every following Store is dropped.  Close
// waits for a Store in progress to finish delivering.
func (c *Cell[T]) Close() {
	c.notify.Lock()
	defer c.notify.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.subs = nil
	close(c.done)
}

// Done returns a channel that's closed when the cell is closed.
func (c *Cell[T]) Done() <-chan struct{} {
	return c.done
}
