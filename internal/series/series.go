// Package series maintains the two in-memory views of a power capture:
// an unbounded append-only Series and a fixed-capacity rolling Window.
package series

import (
	"errors"
	"fmt"
	"math"
)

// ErrCapacity reports a rolling window capacity too small to hold a
// meaningful sliding view.
var ErrCapacity = errors.New("window capacity must be at least 2")

// Point is one charted sample: a synthetic x index (ticks since the
// capture started) and the measured power in watts.
type Point struct {
	X     int
	Watts float64
}

// Window holds the most recent samples in a fixed-size ring buffer.
// Pushing overwrites the oldest slot in place, so a push never
// allocates or shifts. The window is always full: it is seeded with
// zero-valued placeholder points so charts open on a flat baseline.
type Window struct {
	ring  []Point // fixed backing array, len == capacity
	head  int     // oldest slot, also the next overwrite target
	lastX int
}

// NewWindow returns a rolling window over the last capacity samples.
// The constructor feeds capacity+1 placeholder zeros through the normal
// push path; their x run ends at -1, so the first real sample gets x=0.
func NewWindow(capacity int) (*Window, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	w := &Window{
		ring:  make([]Point, capacity),
		lastX: -(capacity + 2),
	}
	for i := 0; i <= capacity; i++ {
		w.Push(0)
	}
	return w, nil
}

// Push appends a value at x = last_x + 1, evicting the oldest point.
func (w *Window) Push(watts float64) {
	w.lastX++
	w.ring[w.head] = Point{X: w.lastX, Watts: watts}
	w.head = (w.head + 1) % len(w.ring)
}

// Snapshot returns the window contents in chronological order. The
// returned slice is a copy; mutating it does not affect the window.
func (w *Window) Snapshot() []Point {
	out := make([]Point, 0, len(w.ring))
	out = append(out, w.ring[w.head:]...)
	out = append(out, w.ring[:w.head]...)
	return out
}

// Capacity returns the fixed window size.
func (w *Window) Capacity() int {
	return len(w.ring)
}

// Series is the unbounded full-history view of a capture. It keeps
// every sample since start, so memory grows with capture length.
type Series struct {
	points []Point
	Min    float64
	Peak   float64
}

// NewSeries returns an empty series.
func NewSeries() *Series {
	return &Series{
		Min:  math.MaxFloat64,
		Peak: -math.MaxFloat64,
	}
}

// Push appends a value at x = last_x + 1, starting at 0.
func (s *Series) Push(watts float64) {
	x := 0
	if len(s.points) > 0 {
		x = s.points[len(s.points)-1].X + 1
	}
	s.points = append(s.points, Point{X: x, Watts: watts})

	if watts < s.Min {
		s.Min = watts
	}
	if watts > s.Peak {
		s.Peak = watts
	}
}

// Len returns the number of samples pushed so far.
func (s *Series) Len() int {
	return len(s.points)
}

// Last returns the most recent value, or 0 if empty.
func (s *Series) Last() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return s.points[len(s.points)-1].Watts
}

// Avg returns the average across all samples, or 0 if empty.
func (s *Series) Avg() float64 {
	if len(s.points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.points {
		sum += p.Watts
	}
	return sum / float64(len(s.points))
}

// Snapshot returns the full history in push order as a copy.
func (s *Series) Snapshot() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}
