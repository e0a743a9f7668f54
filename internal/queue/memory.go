package queue

import (
	"context"
)

// MemoryQueue is an in-process channel queue. Enqueue never blocks: a full
// buffer returns ErrQueueFull.
type MemoryQueue struct {
	jobs chan Job
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (m *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case m.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (m *MemoryQueue) Consume(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-m.jobs:
			_ = h(ctx, job)
		}
	}
}

// Len reports buffered jobs.
func (m *MemoryQueue) Len() int { return len(m.jobs) }
