package rtos

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrThreadRunning is returned when Run is called on a thread that is
	// already running on another goroutine.
	ErrThreadRunning = errors.New("thread already running")
	// ErrReentrantRun is returned when Run is called from the thread itself.
	ErrReentrantRun = errors.New("cannot run thread from within itself")
	// ErrThreadStopped is returned when Run is called after the thread exited.
	ErrThreadStopped = errors.New("thread stopped")
)

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// ThreadInfo is a snapshot of a thread for diagnostics.
type ThreadInfo struct {
	Name      string   `json:"name"`
	ID        ThreadID `json:"id"`
	HasQueue  bool     `json:"has_queue"`
	Depth     int      `json:"depth"`
	Capacity  int      `json:"capacity"`
	Running   bool     `json:"running"`
	Processed uint64   `json:"processed"`
	Dropped   uint64   `json:"dropped"`
}

// Thread is a named run loop bound to one goroutine, optionally owning a
// bounded task queue.
type Thread struct {
	name   string
	queue  *Queue
	logger *slog.Logger

	id        atomic.Uint64
	state     atomic.Int32
	processed atomic.Uint64
	dropped   atomic.Uint64

	started chan struct{}
	done    chan struct{}
}

// NewThread creates a thread. A depth of zero creates a thread without a
// queue; such a thread still has an identity but cannot accept tasks.
func NewThread(name string, depth int, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Thread{
		name:    name,
		logger:  logger.With("thread", name),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if depth > 0 {
		t.queue = NewQueue(name, depth)
	}
	return t
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// ID returns the goroutine identity, or zero before Run starts.
func (t *Thread) ID() ThreadID { return ThreadID(t.id.Load()) }

// IsCurrent reports whether the caller is running on this thread.
func (t *Thread) IsCurrent() bool {
	id := t.ID()
	return id != 0 && id == CurrentThreadID()
}

// HasQueue reports whether the thread owns a task queue.
func (t *Thread) HasQueue() bool { return t.queue != nil }

// Post enqueues a task for the run loop. It returns false when the thread has
// no queue, the queue is full, or the thread has stopped.
func (t *Thread) Post(task Task) bool {
	if t.queue == nil {
		return false
	}
	return t.queue.TrySend(task)
}

// Run processes queued tasks on the calling goroutine until ctx is done.
// Tasks still queued at shutdown are destroyed without being executed.
func (t *Thread) Run(ctx context.Context) error {
	if t.IsCurrent() {
		return ErrReentrantRun
	}
	if !t.state.CompareAndSwap(stateIdle, stateRunning) {
		if t.state.Load() == stateStopped {
			return ErrThreadStopped
		}
		return ErrThreadRunning
	}

	t.id.Store(uint64(CurrentThreadID()))
	close(t.started)
	t.logger.Debug("thread started", "thread_id", t.ID())
	defer t.shutdown()

	if t.queue == nil {
		<-ctx.Done()
		return nil
	}
	for {
		task, err := t.queue.Receive(ctx)
		if err != nil {
			return nil
		}
		t.processed.Add(1)
		if !RunTask(task, t.logger) {
			t.dropped.Add(1)
		}
	}
}

// Start runs the thread on a new goroutine and returns once its identity is
// known.
func (t *Thread) Start(ctx context.Context) {
	go func() {
		if err := t.Run(ctx); err != nil {
			t.logger.Error("thread run failed", "error", err)
		}
	}()
	select {
	case <-t.started:
	case <-t.done:
	}
}

// Wait blocks until the run loop has exited.
func (t *Thread) Wait() { <-t.done }

func (t *Thread) shutdown() {
	if t.queue != nil {
		t.queue.Close()
		n := t.queue.Drain(func(task Task) { task.Destroy() })
		if n > 0 {
			t.dropped.Add(uint64(n))
			t.logger.Warn("discarded queued tasks at shutdown", "count", n)
		}
	}
	t.state.Store(stateStopped)
	close(t.done)
	t.logger.Debug("thread stopped")
}

// Info returns a diagnostics snapshot.
func (t *Thread) Info() ThreadInfo {
	info := ThreadInfo{
		Name:      t.name,
		ID:        t.ID(),
		HasQueue:  t.queue != nil,
		Running:   t.state.Load() == stateRunning,
		Processed: t.processed.Load(),
		Dropped:   t.dropped.Load(),
	}
	if t.queue != nil {
		info.Depth = t.queue.Len()
		info.Capacity = t.queue.Cap()
	}
	return info
}
