package scheduler

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer queue. Push must only be called from one
// context and Pop from one other context. The backing array is allocated once by NewRing.
type Ring[T any] struct {
	buf  []T
	head atomic.Uint32 // next slot to read, owned by the consumer
	tail atomic.Uint32 // next slot to write, owned by the producer
}

// NewRing creates a Ring holding up to capacity entries
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, capacity+1)}
}

// Push adds v to the back of the queue. It returns false without blocking when the queue is full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	next := r.next(tail)
	if next == r.head.Load() {
		return false
	}
	r.buf[tail] = v
	r.tail.Store(next)
	return true
}

// Pop removes the oldest entry. It returns false without blocking when the queue is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.buf[head]
	r.buf[head] = zero
	r.head.Store(r.next(head))
	return v, true
}

// Len returns the number of queued entries
func (r *Ring[T]) Len() int {
	head, tail := r.head.Load(), r.tail.Load()
	if tail >= head {
		return int(tail - head)
	}
	return int(tail) + len(r.buf) - int(head)
}

// Cap returns the maximum number of queued entries
func (r *Ring[T]) Cap() int {
	return len(r.buf) - 1
}

// Full reports whether Push would fail
func (r *Ring[T]) Full() bool {
	return r.Len() == r.Cap()
}

// Reset discards every entry. Neither side may be using the Ring concurrently.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head.Store(0)
	r.tail.Store(0)
}

func (r *Ring[T]) next(i uint32) uint32 {
	i++
	if int(i) == len(r.buf) {
		return 0
	}
	return i
}
