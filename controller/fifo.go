package controller

// fifo is an unbounded queue of power values. It is only used from the frame goroutine.
type fifo struct {
	values []float32
	head   int
}

func (f *fifo) push(v float32) {
	// reclaim the consumed prefix once it dominates the slice
	if f.head > 0 && f.head >= len(f.values)/2 {
		n := copy(f.values, f.values[f.head:])
		f.values = f.values[:n]
		f.head = 0
	}
	f.values = append(f.values, v)
}

func (f *fifo) pop() (float32, bool) {
	if f.head == len(f.values) {
		return 0, false
	}
	v := f.values[f.head]
	f.head++
	return v, true
}

// popOr returns the oldest value, or fallback when empty
func (f *fifo) popOr(fallback float32) float32 {
	v, ok := f.pop()
	if !ok {
		return fallback
	}
	return v
}

func (f *fifo) len() int {
	return len(f.values) - f.head
}

func (f *fifo) clear() {
	f.values = f.values[:0]
	f.head = 0
}
