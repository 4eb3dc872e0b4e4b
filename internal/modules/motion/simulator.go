// Package motion simulates a driver travelling along a path at a fixed pace.
package motion

import (
	"sync"
	"time"

	"smartride/internal/types"
)

// Position is one simulated tick. Arrived is set only on the final index.
type Position struct {
	Index   int            `json:"index"`
	Point   types.GeoPoint `json:"point"`
	Arrived bool           `json:"arrived"`
}

// Run is a cancellable simulation. Positions are delivered on an unbuffered
// channel that is closed after arrival or cancellation.
type Run struct {
	positions chan Position
	done      chan struct{}
	exited    chan struct{}
	once      sync.Once
}

// Start emits path[i] every total/len(path), one index per tick. An empty path
// produces a closed channel.
func Start(path []types.GeoPoint, total time.Duration) *Run {
	r := &Run{
		positions: make(chan Position),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	points := append([]types.GeoPoint(nil), path...)
	go r.loop(points, stepDelay(total, len(points)))
	return r
}

func stepDelay(total time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	d := total / time.Duration(n)
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func (r *Run) loop(path []types.GeoPoint, step time.Duration) {
	defer close(r.exited)
	defer close(r.positions)
	if len(path) == 0 {
		return
	}

	ticker := time.NewTicker(step)
	defer ticker.Stop()

	last := len(path) - 1
	for i := 0; i <= last; i++ {
		select {
		case <-r.done:
			return
		case <-ticker.C:
		}
		pos := Position{Index: i, Point: path[i], Arrived: i == last}
		select {
		case <-r.done:
			return
		case r.positions <- pos:
		}
	}
}

func (r *Run) Positions() <-chan Position {
	return r.positions
}

// Done is closed once the emitting goroutine has exited.
func (r *Run) Done() <-chan struct{} {
	return r.exited
}

// Cancel stops emission and waits for the emitter to exit. Safe to call more
// than once and after arrival.
func (r *Run) Cancel() {
	r.once.Do(func() { close(r.done) })
	<-r.exited
}
