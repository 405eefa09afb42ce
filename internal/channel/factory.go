//go:build !debug

package channel

// New creates the inbox used by production builds: buffered up to size.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
