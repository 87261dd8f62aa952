// Package dispatch provides the in-memory queue feeding the engine's
// asynchronous flow-run workers.
package dispatch

import "context"

// Submission is one queued flow run. Execute drives the already-created run
// to a terminal state; the closure keeps this package free of engine types.
type Submission struct {
	RunID   string
	Execute func(ctx context.Context)
}

// Queue is a bounded submission queue backed by a buffered channel.
// It is safe for concurrent use.
type Queue struct {
	ch chan Submission
}

// NewQueue creates a queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		ch: make(chan Submission, capacity),
	}
}

func (q *Queue) Enqueue(ctx context.Context, s Submission) error {
	select {
	case q.ch <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Dequeue(ctx context.Context) (*Submission, error) {
	select {
	case s := <-q.ch:
		return &s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}
