package channel

import "sync/atomic"

// Buffered is an inbox with fixed capacity. Send succeeds until the buffer
// fills, then drops.
type Buffered[T any] struct {
	ch      chan T
	dropped atomic.Int64
}

// NewBuffered creates an inbox holding up to size values.
func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send queues v if capacity remains, reporting false on overflow.
func (b *Buffered[T]) Send(v T) bool {
	select {
	case b.ch <- v:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Receive returns the receive side of the inbox.
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of queued values.
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Dropped returns how many values Send has discarded.
func (b *Buffered[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes the inbox.
func (b *Buffered[T]) Close() {
	close(b.ch)
}
