// Package ring provides the fixed-capacity sliding window of raw samples
// that the streaming pipeline analyses on every arrival.
package ring

import "fmt"

// Window keeps the most recent Cap() samples. Writing past capacity evicts
// the oldest sample. A Window is not safe for concurrent use.
type Window struct {
	data  []float64
	head  int // next write position
	count int
}

// New creates a window holding at most size samples.
func New(size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ring: invalid window size %d", size)
	}
	return &Window{data: make([]float64, size)}, nil
}

// Push appends v, evicting the oldest sample when full.
func (w *Window) Push(v float64) {
	w.data[w.head] = v
	w.head = (w.head + 1) % len(w.data)
	if w.count < len(w.data) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.data)
}

// Full reports whether the window holds Cap() samples.
func (w *Window) Full() bool {
	return w.count == len(w.data)
}

// Snapshot copies the held samples, oldest first, into dst and returns the
// filled slice. dst is grown when it is too small.
func (w *Window) Snapshot(dst []float64) []float64 {
	if cap(dst) < w.count {
		dst = make([]float64, w.count)
	}
	dst = dst[:w.count]

	tail := (w.head - w.count + len(w.data)) % len(w.data)
	firstPart := len(w.data) - tail
	if w.count <= firstPart {
		copy(dst, w.data[tail:tail+w.count])
	} else {
		copy(dst, w.data[tail:])
		copy(dst[firstPart:], w.data[:w.count-firstPart])
	}
	return dst
}

// Latest returns the most recently pushed sample.
func (w *Window) Latest() (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.data[(w.head-1+len(w.data))%len(w.data)], true
}

// Reset drops all samples.
func (w *Window) Reset() {
	w.head = 0
	w.count = 0
}
