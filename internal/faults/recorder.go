package faults

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/sigslot/internal/signal"
)

// ErrRecorderClosed is returned by Run once the recorder has already run.
var ErrRecorderClosed = errors.New("fault recorder closed")

// Stats counts recorder outcomes since construction.
type Stats struct {
	Recorded uint64 `json:"recorded"`
	Dropped  uint64 `json:"dropped"`
	Failed   uint64 `json:"failed"`
	Pending  int    `json:"pending"`
}

// Recorder is a signal.FaultSink that persists faults on its own goroutine.
// DispatchFault never blocks: when the buffer is full the fault is counted
// and dropped.
type Recorder struct {
	store      *Store
	ch         chan signal.Fault
	logger     *slog.Logger
	retention  time.Duration
	pruneEvery time.Duration

	used     atomic.Bool
	stopped  atomic.Bool
	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRetention prunes faults older than d every pruneEvery while running.
func WithRetention(d, pruneEvery time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.retention = d
		r.pruneEvery = pruneEvery
	}
}

func NewRecorder(store *Store, buffer int, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	r := &Recorder{
		store:  store,
		ch:     make(chan signal.Fault, buffer),
		logger: logger.With("component", "faults"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DispatchFault implements signal.FaultSink.
func (r *Recorder) DispatchFault(f signal.Fault) {
	if r.stopped.Load() {
		r.dropped.Add(1)
		return
	}
	select {
	case r.ch <- f:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued faults until ctx ends, then flushes what is buffered.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.used.CompareAndSwap(false, true) {
		return ErrRecorderClosed
	}

	var prune <-chan time.Time
	if r.retention > 0 && r.pruneEvery > 0 {
		t := time.NewTicker(r.pruneEvery)
		defer t.Stop()
		prune = t.C
	}

	// Writes outlive cancellation so a fault taken off the channel is never lost.
	wctx := context.WithoutCancel(ctx)

	r.logger.Info("fault recorder started")
	for {
		select {
		case <-ctx.Done():
			r.stopped.Store(true)
			n := r.flush()
			r.logger.Info("fault recorder stopped", "flushed", n, "dropped", r.dropped.Load())
			return nil
		case f := <-r.ch:
			r.write(wctx, f)
		case <-prune:
			n, err := r.store.Prune(wctx, r.retention)
			if err != nil {
				r.logger.Error("prune faults failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("pruned faults", "count", n)
			}
		}
	}
}

func (r *Recorder) flush() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	for {
		select {
		case f := <-r.ch:
			r.write(ctx, f)
			n++
		default:
			return n
		}
	}
}

func (r *Recorder) write(ctx context.Context, f signal.Fault) {
	if _, err := r.store.Record(ctx, f); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to record fault", "signal", f.SignalName, "error", err)
		return
	}
	r.recorded.Add(1)
}

// Stats returns a snapshot of recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
		Pending:  len(r.ch),
	}
}
