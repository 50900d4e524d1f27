package rtos

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of deferred work carried by a Queue. Execute reports false
// when the work was dropped (for example because its target is gone). Destroy
// is called exactly once after Execute, or instead of it when the task is
// discarded.
type Task interface {
	Execute() bool
	Destroy()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

func (f TaskFunc) Execute() bool {
	f()
	return true
}

func (f TaskFunc) Destroy() {}

// RunTask executes t and always destroys it. A panicking task is logged and
// counted as dropped.
func RunTask(t Task, logger *slog.Logger) (ok bool) {
	defer t.Destroy()
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("task panicked", "panic", r)
		}
	}()
	ok = t.Execute()
	if !ok && logger != nil {
		logger.Debug("task dropped")
	}
	return ok
}

// Queue is a bounded FIFO of tasks. Senders never block; once closed, sends
// are refused so the owner can drain the remainder deterministically.
type Queue struct {
	name string
	ch   chan Task

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue holding at most depth tasks.
func NewQueue(name string, depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{name: name, ch: make(chan Task, depth)}
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// TrySend enqueues t without blocking. It returns false when the queue is
// full or closed.
func (q *Queue) TrySend(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// Receive blocks until a task is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (Task, error) {
	select {
	case t := <-q.ch:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryReceive dequeues a task if one is immediately available.
func (q *Queue) TryReceive() (Task, bool) {
	select {
	case t := <-q.ch:
		return t, true
	default:
		return nil, false
	}
}

// Close refuses further sends. Tasks already queued stay until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Drain hands every queued task to fn and returns how many there were.
func (q *Queue) Drain(fn func(Task)) int {
	n := 0
	for {
		t, ok := q.TryReceive()
		if !ok {
			return n
		}
		fn(t)
		n++
	}
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue depth.
func (q *Queue) Cap() int { return cap(q.ch) }
