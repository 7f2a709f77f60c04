package audio

import (
	"sync"
)

// FrameQueue is a thread-safe FIFO of outbound audio frames.
// It grows as needed; the pacer drains it at one frame per tick.
type FrameQueue struct {
	mu     sync.Mutex
	frames [][]byte
	head   int
	pushed int
}

// NewFrameQueue creates an empty frame queue
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{}
}

// Push appends frames to the tail, preserving their order
func (q *FrameQueue) Push(frames ...[]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.frames = append(q.frames, frames...)
	q.pushed += len(frames)
}

// Pop removes and returns the frame at the head.
// Returns false if the queue is empty.
func (q *FrameQueue) Pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.frames) {
		return nil, false
	}

	frame := q.frames[q.head]
	q.frames[q.head] = nil
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head == len(q.frames) {
		q.frames = q.frames[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.frames) {
		n := copy(q.frames, q.frames[q.head:])
		q.frames = q.frames[:n]
		q.head = 0
	}

	return frame, true
}

// Len returns the number of frames waiting to be sent
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) - q.head
}

// Pushed returns the total number of frames ever enqueued
func (q *FrameQueue) Pushed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}

// Clear drops all pending frames
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.frames = nil
	q.head = 0
}
