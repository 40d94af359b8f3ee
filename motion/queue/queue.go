// Package queue holds the ordered list of targets waiting for playback.
package queue

import (
	"sync"

	"scara/motion"
)

// PointQueue is a FIFO of Cartesian targets.
// All methods are safe for concurrent use; Clear is atomic with respect
// to DrainNext, so a clear issued during playback is seen by the next drain.
type PointQueue struct {
	mu     sync.Mutex
	points []motion.Target
}

// New creates an empty queue
func New() *PointQueue {
	return &PointQueue{
		points: make([]motion.Target, 0, 32),
	}
}

// Enqueue appends a target. No deduplication, no capacity bound.
func (q *PointQueue) Enqueue(t motion.Target) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.points = append(q.points, t)
}

// DrainNext removes and returns the oldest target.
// The second result is false if the queue is empty.
func (q *PointQueue) DrainNext() (motion.Target, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.points) == 0 {
		return motion.Target{}, false
	}

	t := q.points[0]
	q.points = q.points[1:]
	return t, true
}

// Clear discards all pending targets
func (q *PointQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.points = make([]motion.Target, 0, 32)
}

// Len returns the number of pending targets
func (q *PointQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.points)
}

// Snapshot returns a copy of the pending targets in playback order
func (q *PointQueue) Snapshot() []motion.Target {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]motion.Target(nil), q.points...)
}
