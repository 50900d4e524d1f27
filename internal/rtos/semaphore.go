package rtos

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore that starts empty and holds at most max
// permits.
type Semaphore struct {
	w *semaphore.Weighted
}

// NewSemaphore creates an empty semaphore.
func NewSemaphore(max int64) *Semaphore {
	if max < 1 {
		max = 1
	}
	w := semaphore.NewWeighted(max)
	// Hold every unit so the count starts at zero; Release hands units back.
	w.TryAcquire(max)
	return &Semaphore{w: w}
}

// Release adds one permit.
func (s *Semaphore) Release() { s.w.Release(1) }

// Acquire takes one permit, blocking until one is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error { return s.w.Acquire(ctx, 1) }

// TryAcquire takes one permit if immediately available.
func (s *Semaphore) TryAcquire() bool { return s.w.TryAcquire(1) }

// Reset discards any outstanding permits.
func (s *Semaphore) Reset() {
	for s.w.TryAcquire(1) {
	}
}
