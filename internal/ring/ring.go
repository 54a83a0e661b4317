// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// element when full.
package ring

// Ring is a fixed-capacity FIFO. Push is O(1) including eviction.
// Not safe for concurrent use; callers synchronize.
type Ring[T any] struct {
	buf      []T
	capacity int
	head     int // next write position
	count    int
}

// New creates a Ring holding at most capacity elements.
// A capacity below one is treated as one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v. If the ring is full the oldest element is overwritten
// and returned with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.count == r.capacity {
		// head already points at the oldest element
		old = r.buf[r.head]
		evicted = true
		r.buf[r.head] = v
		r.head = (r.head + 1) % r.capacity
		return old, evicted
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	r.count++
	return old, false
}

// Items returns the elements oldest first without removing them.
func (r *Ring[T]) Items() []T {
	if r.count == 0 {
		return nil
	}
	result := make([]T, r.count)
	start := r.start()
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}
	return result
}

// Drain returns the elements oldest first and empties the ring.
func (r *Ring[T]) Drain() []T {
	result := r.Items()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.count = 0
	r.head = 0
	return result
}

// Oldest returns the oldest element.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[r.start()], true
}

// Newest returns the most recently pushed element.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	return r.buf[(r.head-1+r.capacity)%r.capacity], true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

func (r *Ring[T]) start() int {
	return (r.head - r.count + r.capacity) % r.capacity
}
