package usecase

import (
	"context"
	"sync"

	"linkrelay/internal/domain"
)

// Queue is the unbounded FIFO buffer between admission and dispatch.
// Enqueue never blocks; Dequeue blocks until a message arrives or the
// context is cancelled. Depth is observable so the consumer can report
// growth, which is the only monitoring the unbounded design gets.
type Queue struct {
	mu    sync.Mutex
	items []domain.RelayMessage
	wake  chan struct{}
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends a message. Accept-always: there is no capacity limit.
func (q *Queue) Enqueue(msg domain.RelayMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest message, blocking until one exists.
func (q *Queue) Dequeue(ctx context.Context) (domain.RelayMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.RelayMessage{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
