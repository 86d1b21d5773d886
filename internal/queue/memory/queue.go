// Package memory provides the in-process stage task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/seo-brief-automator/internal/pipeline"
)

// ErrClosed is returned by Dequeue and Enqueue after Close.
var ErrClosed = pipeline.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan pipeline.StageTask
	closeMu sync.RWMutex
	closed  bool
}

var _ pipeline.Queue = (*Queue)(nil)

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan pipeline.StageTask, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task pipeline.StageTask) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (pipeline.StageTask, error) {
	select {
	case <-ctx.Done():
		return pipeline.StageTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return pipeline.StageTask{}, ErrClosed
		}
		return task, nil
	}
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
