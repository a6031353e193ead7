// Package pool provides a small grow-only object pool. It exists to
// reuse HTTP client handles (and their warm connections) across
// scheduled tasks instead of paying connection setup per request.
package pool

import "sync"

// Pool hands out idle items, constructing new ones via the factory
// when none is idle. It never shrinks, trading memory for avoiding
// repeated setup, and is safe for concurrent use.
type Pool[T any] struct {
	mu    sync.Mutex
	idle  []T
	newFn func() T
}

func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{newFn: newFn}
}

// Acquire returns an item and a release func. The release func must
// be called exactly once on every exit path, task failure included;
// callers defer it immediately.
func (p *Pool[T]) Acquire() (T, func()) {
	p.mu.Lock()
	var item T
	if n := len(p.idle); n > 0 {
		item = p.idle[n-1]
		p.idle = p.idle[:n-1]
	} else {
		item = p.newFn()
	}
	p.mu.Unlock()

	return item, func() {
		p.mu.Lock()
		p.idle = append(p.idle, item)
		p.mu.Unlock()
	}
}

// Idle reports how many items are currently checked in.
func (p *Pool[T]) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
