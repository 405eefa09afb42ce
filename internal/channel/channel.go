// Package channel provides the generic inbox primitive behind the messaging
// endpoint. Producers run on arbitrary goroutines (transport callbacks,
// timers); the single consumer drains on the host scheduler tick. Send never
// blocks: a producer stalled on a slow consumer would stall the scheduler,
// so overflow drops the value and counts it instead.
package channel

// Receiver provides read access to an inbox.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to an inbox. Send reports false when the
// value was dropped for lack of capacity.
type Sender[T any] interface {
	Send(T) bool
}

// Channel combines read and write access with drop accounting.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	// Dropped returns the number of values discarded by Send so far.
	Dropped() int64
	Close()
}
