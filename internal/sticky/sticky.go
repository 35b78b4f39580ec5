// Package sticky implements the Sticky Layout Manager: it enforces
// the bottom-ordering invariant for task-list and plan-approval posts
// by serializing "bump" operations through a per-session FIFO lock.
//
// golang.org/x/sync/semaphore.Weighted(1) grants Acquire calls in
// arrival order, giving a strict FIFO mutex without having to
// hand-roll a promise chain.
package sticky

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Lock is a per-session FIFO mutex guarding sticky mutations.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock creates an unlocked sticky lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until it is this caller's turn, in FIFO arrival
// order, or ctx is cancelled.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release hands the lock to the next waiter, if any.
func (l *Lock) Release() {
	l.sem.Release(1)
}

// WithLock runs fn while holding the lock, releasing it even if fn
// panics or returns an error.
func (l *Lock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
