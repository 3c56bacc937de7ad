// Package ring provides a fixed-capacity append-only log with
// oldest-first eviction, used for order events, trades, and price history.
package ring

// Buffer holds the most recent Capacity entries in arrival order. The zero
// value is not usable; construct with New.
type Buffer[T any] struct {
	entries  []T
	capacity int
}

// New creates a Buffer that retains at most capacity entries. A capacity of
// zero or less means the buffer never retains anything.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer[T]{capacity: capacity}
}

// Append adds one entry, evicting from the front once the capacity is
// exceeded, so the buffer always holds the newest entries in arrival order.
func (b *Buffer[T]) Append(entry T) {
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.capacity {
		overflow := len(b.entries) - b.capacity
		b.entries = append(b.entries[:0], b.entries[overflow:]...)
	}
}

// AppendAll adds entries in order, applying the same eviction rule.
func (b *Buffer[T]) AppendAll(entries []T) {
	for _, e := range entries {
		b.Append(e)
	}
}

// Len returns the number of retained entries.
func (b *Buffer[T]) Len() int {
	return len(b.entries)
}

// Snapshot returns a copy of the retained entries, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, len(b.entries))
	copy(out, b.entries)
	return out
}

// Reset discards all retained entries, keeping the capacity.
func (b *Buffer[T]) Reset() {
	b.entries = nil
}
