package scheduler

import (
	"sync"
	"testing"
)

func TestRing(t *testing.T) {
	r := NewRing[int](3)

	if _, ok := r.Pop(); ok {
		t.Errorf("expected empty ring")
	}

	for i := range 3 {
		if !r.Push(i) {
			t.Fatalf("unexpected full ring at %d", i)
		}
	}
	if !r.Full() || r.Len() != 3 || r.Cap() != 3 {
		t.Errorf("expected full ring of 3, got len=%d cap=%d", r.Len(), r.Cap())
	}
	if r.Push(99) {
		t.Errorf("expected Push to fail when full")
	}

	// wrap around several times and check FIFO order
	next := 0
	for i := 3; i < 20; i++ {
		v, ok := r.Pop()
		if !ok || v != next {
			t.Fatalf("expected %d, got %d/%v", next, v, ok)
		}
		next++
		if !r.Push(i) {
			t.Fatalf("unexpected full ring at %d", i)
		}
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("expected empty ring after Reset")
	}
}

func TestRingConcurrent(t *testing.T) {
	const n = 10000
	r := NewRing[int](14)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if r.Push(i) {
				i++
			}
		}
	}()

	for expected := 0; expected < n; {
		v, ok := r.Pop()
		if !ok {
			continue
		}
		if v != expected {
			t.Fatalf("expected %d, got %d", expected, v)
		}
		expected++
	}
	wg.Wait()
}
