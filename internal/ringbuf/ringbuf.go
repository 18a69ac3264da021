// Package ringbuf provides fixed-capacity rolling histories.
//
// Display and export consumers read these buffers concurrently with the
// model writing them, so every operation takes the buffer lock. Capacity
// is fixed at creation; pushing past it overwrites the oldest entry.
package ringbuf

import (
	"errors"
	"sync"
)

// ErrBadCapacity is returned by New for non-positive capacities.
var ErrBadCapacity = errors.New("ringbuf: capacity must be positive")

// Ring is a fixed-capacity rolling buffer of float64 samples.
// Safe for concurrent use.
type Ring struct {
	mu   sync.Mutex
	data []float64
	head int // next write slot
	n    int // valid entries, <= cap
}

// New creates a ring holding at most capacity samples.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	return &Ring{data: make([]float64, capacity)}, nil
}

// MustNew is New for statically known capacities.
func MustNew(capacity int) *Ring {
	r, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Push appends a sample, evicting the oldest when full.
func (r *Ring) Push(v float64) {
	r.mu.Lock()
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.n < len(r.data) {
		r.n++
	}
	r.mu.Unlock()
}

// Len reports how many samples are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap reports the fixed capacity.
func (r *Ring) Cap() int { return len(r.data) }

// Last returns the most recently pushed sample, if any.
func (r *Ring) Last() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return 0, false
	}
	idx := (r.head - 1 + len(r.data)) % len(r.data)
	return r.data[idx], true
}

// Snapshot copies the held samples in oldest-to-newest order.
func (r *Ring) Snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, r.n)
	start := (r.head - r.n + len(r.data)) % len(r.data)
	for i := 0; i < r.n; i++ {
		out[i] = r.data[(start+i)%len(r.data)]
	}
	return out
}

// Reset discards all held samples, keeping the capacity.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.head = 0
	r.n = 0
	r.mu.Unlock()
}
