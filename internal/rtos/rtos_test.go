package rtos

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

type countingTask struct {
	executed  *atomic.Int32
	destroyed *atomic.Int32
	ok        bool
	panicMsg  string
}

func (c countingTask) Execute() bool {
	if c.panicMsg != "" {
		panic(c.panicMsg)
	}
	c.executed.Add(1)
	return c.ok
}

func (c countingTask) Destroy() { c.destroyed.Add(1) }

func TestCurrentThreadIDDistinct(t *testing.T) {
	self := CurrentThreadID()
	assert.NotZero(t, self)
	assert.Equal(t, self, CurrentThreadID())

	other := make(chan ThreadID)
	go func() { other <- CurrentThreadID() }()
	assert.NotEqual(t, self, <-other)
}

func TestRunTaskAlwaysDestroys(t *testing.T) {
	logger, buf := newTestLogger()
	var executed, destroyed atomic.Int32

	assert.True(t, RunTask(countingTask{executed: &executed, destroyed: &destroyed, ok: true}, logger))
	assert.False(t, RunTask(countingTask{executed: &executed, destroyed: &destroyed, ok: false}, logger))
	assert.False(t, RunTask(countingTask{executed: &executed, destroyed: &destroyed, panicMsg: "boom"}, logger))

	assert.Equal(t, int32(2), executed.Load())
	assert.Equal(t, int32(3), destroyed.Load())
	assert.Contains(t, buf.String(), "task panicked")
}

func TestQueueBoundedAndClosed(t *testing.T) {
	q := NewQueue("q", 2)
	noop := TaskFunc(func() {})

	assert.True(t, q.TrySend(noop))
	assert.True(t, q.TrySend(noop))
	assert.False(t, q.TrySend(noop), "full queue refuses")
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2, q.Cap())

	q.Close()
	_, _ = q.TryReceive()
	assert.False(t, q.TrySend(noop), "closed queue refuses even with room")
	assert.Equal(t, 1, q.Drain(func(Task) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThreadRunsTasksOnItsOwnGoroutine(t *testing.T) {
	logger, _ := newTestLogger()
	th := NewThread("worker", 4, logger)
	ctx, cancel := context.WithCancel(context.Background())
	th.Start(ctx)

	require.NotZero(t, th.ID())
	assert.False(t, th.IsCurrent())

	seen := make(chan ThreadID, 1)
	require.True(t, th.Post(TaskFunc(func() { seen <- CurrentThreadID() })))
	assert.Equal(t, th.ID(), <-seen)

	cancel()
	th.Wait()
	assert.False(t, th.Post(TaskFunc(func() {})), "stopped thread refuses tasks")
	assert.ErrorIs(t, th.Run(context.Background()), ErrThreadStopped)

	info := th.Info()
	assert.Equal(t, "worker", info.Name)
	assert.Equal(t, uint64(1), info.Processed)
	assert.False(t, info.Running)
}

func TestThreadShutdownDestroysLeftovers(t *testing.T) {
	logger, _ := newTestLogger()
	th := NewThread("busy", 8, logger)
	ctx, cancel := context.WithCancel(context.Background())
	th.Start(ctx)

	release := make(chan struct{})
	require.True(t, th.Post(TaskFunc(func() { <-release })))

	var executed, destroyed atomic.Int32
	for i := 0; i < 3; i++ {
		require.True(t, th.Post(countingTask{executed: &executed, destroyed: &destroyed, ok: true}))
	}
	cancel()
	close(release)
	th.Wait()

	assert.Equal(t, int32(3), destroyed.Load(), "every leftover task is destroyed")
	assert.LessOrEqual(t, executed.Load(), int32(3))
}

func TestThreadWithoutQueue(t *testing.T) {
	th := NewThread("bare", 0, nil)
	assert.False(t, th.HasQueue())
	assert.False(t, th.Post(TaskFunc(func() {})))

	ctx, cancel := context.WithCancel(context.Background())
	th.Start(ctx)
	assert.NotZero(t, th.ID())
	assert.ErrorIs(t, th.Run(ctx), ErrThreadRunning)
	cancel()
	th.Wait()
}

func TestThreadReentrantRun(t *testing.T) {
	th := NewThread("self", 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	th.Start(ctx)

	errCh := make(chan error, 1)
	require.True(t, th.Post(TaskFunc(func() { errCh <- th.Run(ctx) })))
	assert.ErrorIs(t, <-errCh, ErrReentrantRun)
}

func TestSemaphoreStartsEmpty(t *testing.T) {
	s := NewSemaphore(4)
	assert.False(t, s.TryAcquire())

	s.Release()
	s.Release()
	assert.True(t, s.TryAcquire())

	s.Reset()
	assert.False(t, s.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Acquire(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Release()
	}()
	require.NoError(t, s.Acquire(context.Background()))
}

func TestRWLockReentrantReadBypassesWaitingWriter(t *testing.T) {
	l := NewRWLock()
	l.RLock()
	assert.True(t, l.HoldsRead())

	writerDone := make(chan struct{})
	go func() {
		l.Lock()
		assert.True(t, l.HoldsWrite())
		l.Unlock()
		close(writerDone)
	}()

	// Give the writer time to queue up.
	time.Sleep(10 * time.Millisecond)

	l.RLock() // would deadlock without re-entry
	l.RUnlock()

	select {
	case <-writerDone:
		t.Fatal("writer acquired while a reader was active")
	default:
	}

	l.RUnlock()
	<-writerDone
	assert.False(t, l.HoldsRead())
}

func TestRWLockExclusion(t *testing.T) {
	l := NewRWLock()
	var (
		wg      sync.WaitGroup
		active  atomic.Int32
		counter int
	)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.Lock()
				assert.Zero(t, active.Load())
				counter++
				l.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.RLock()
				active.Add(1)
				_ = counter
				active.Add(-1)
				l.RUnlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, counter)
}
