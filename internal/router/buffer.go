package router

import (
	"context"
	"sync"
)

// growThreshold is the fill percentage at which a buffer doubles.
const growThreshold = 70

// GrowableBuffer is a thread-safe FIFO that doubles its capacity when it
// reaches 70% full, up to an optional ceiling. At the ceiling, Send drops.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	ring   []T
	head   int // read position
	count  int
	max    int // 0 = unbounded
	closed bool
	ready  chan struct{} // signalled when items arrive or the buffer closes

	received int64
	sent     int64
	dropped  int64
	resizes  int
}

// NewGrowableBuffer creates a buffer with the given initial capacity and no
// ceiling.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	return NewBoundedBuffer[T](initialCapacity, 0)
}

// NewBoundedBuffer creates a buffer that stops growing at maxCapacity.
// maxCapacity <= 0 means unbounded.
func NewBoundedBuffer[T any](initialCapacity, maxCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity > 0 && maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	return &GrowableBuffer[T]{
		ring:  make([]T, initialCapacity),
		max:   maxCapacity,
		ready: make(chan struct{}, 1),
	}
}

// Send appends an item. Returns false if the buffer is closed or full at its
// ceiling; the latter counts as a drop.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.ring)*growThreshold/100, 1)
	if b.count+1 >= threshold && (b.max == 0 || len(b.ring) < b.max) {
		b.grow()
	}
	if b.count == len(b.ring) {
		b.dropped++
		return false
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.received++
	b.signal()
	return true
}

// Receive blocks until an item is available, the buffer is closed and empty,
// or ctx is done.
func (b *GrowableBuffer[T]) Receive(ctx context.Context) (T, bool) {
	for {
		b.mu.Lock()
		if b.count > 0 {
			item := b.pop()
			if b.count > 0 {
				b.signal()
			}
			b.mu.Unlock()
			return item, true
		}
		closed := b.closed
		b.mu.Unlock()

		var zero T
		if closed {
			return zero, false
		}
		select {
		case <-b.ready:
		case <-ctx.Done():
			return zero, false
		}
	}
}

// TryReceive receives without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items. Remaining items can still be received.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ready)
}

// Closed reports whether Close has been called.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the current number of items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.received,
		TotalSent:     b.sent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizes,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// pop removes the head item. Caller holds mu and has checked count > 0.
func (b *GrowableBuffer[T]) pop() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.sent++
	return item
}

// signal wakes one waiting receiver. Caller holds mu.
func (b *GrowableBuffer[T]) signal() {
	if b.closed {
		return
	}
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// grow doubles capacity, clamped to the ceiling. Caller holds mu.
func (b *GrowableBuffer[T]) grow() {
	size := len(b.ring) * 2
	if b.max > 0 && size > b.max {
		size = b.max
	}
	next := make([]T, size)
	for i := 0; i < b.count; i++ {
		next[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = next
	b.head = 0
	b.resizes++
}
