package channel

import "sync/atomic"

// Unbuffered is an inbox with no capacity at all: Send succeeds only when a
// receiver is already parked on Receive. Debug builds use it so any queueing
// between producer and scheduler shows up immediately as drops.
type Unbuffered[T any] struct {
	ch      chan T
	dropped atomic.Int64
}

// NewUnbuffered creates a zero-capacity inbox.
func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}

// Send hands v to a waiting receiver, reporting false when none is parked.
func (u *Unbuffered[T]) Send(v T) bool {
	select {
	case u.ch <- v:
		return true
	default:
		u.dropped.Add(1)
		return false
	}
}

// Receive returns the receive side of the inbox.
func (u *Unbuffered[T]) Receive() <-chan T {
	return u.ch
}

// Len always returns 0; nothing can queue.
func (u *Unbuffered[T]) Len() int {
	return 0
}

// Dropped returns how many values Send has discarded.
func (u *Unbuffered[T]) Dropped() int64 {
	return u.dropped.Load()
}

// Close closes the inbox.
func (u *Unbuffered[T]) Close() {
	close(u.ch)
}
