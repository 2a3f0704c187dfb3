// Package tasks runs detached background work on a fixed worker pool.
//
// Tasks are not tied to the request that scheduled them: each runs with a
// context derived from the queue's own base context, and once started runs to
// completion or failure. Errors are logged at the task boundary and never
// reach the scheduler; tasks report outcomes through the records they own.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("task queue closed")
	ErrQueueFull   = errors.New("task queue full")
)

// Func is a unit of background work.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Queue is a bounded queue drained by a fixed number of workers.
type Queue struct {
	tasks  chan task
	logger *slog.Logger
	base   context.Context

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts workers goroutines. A nil logger uses slog.Default().
func NewQueue(workers, size int, logger *slog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		tasks:  make(chan task, size),
		logger: logger,
		base:   context.Background(),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Submit enqueues fn without blocking.
func (q *Queue) Submit(name string, fn Func) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued and running tasks to
// finish, or for ctx to expire.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain task queue: %w", ctx.Err())
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.run(t)
	}
}

func (q *Queue) run(t task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Background task panicked", "task", t.name, "panic", r)
		}
	}()

	if err := t.fn(q.base); err != nil {
		q.logger.Error("Background task failed", "task", t.name, "error", err, "duration", time.Since(start))
		return
	}
	q.logger.Debug("Background task finished", "task", t.name, "duration", time.Since(start))
}
