package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattjoyce/sigslot/internal/pool"
	"github.com/mattjoyce/sigslot/internal/rtos"
)

// completion lets a blocking emit wait for its blocking receivers. Exactly
// one side returns it to the pool: the waiter when it saw every finish, or
// the last finisher when the waiter gave up first.
type completion struct {
	mu     sync.Mutex
	total  int
	done   int
	gaveUp bool

	sem    *rtos.Semaphore
	handle pool.Handle
	owner  *completionPool
}

// finish records one blocking receiver as done.
func (c *completion) finish() {
	c.mu.Lock()
	c.done++
	c.sem.Release()
	release := c.gaveUp && c.done == c.total
	c.mu.Unlock()
	if release {
		c.owner.put(c)
	}
}

// wait blocks until every blocking receiver finished or ctx is done.
func (c *completion) wait(ctx context.Context) error {
	for observed := 0; observed < c.total; observed++ {
		if err := c.sem.Acquire(ctx); err != nil {
			c.mu.Lock()
			if c.done == c.total {
				c.mu.Unlock()
				c.owner.put(c)
				return nil
			}
			c.gaveUp = true
			done, total := c.done, c.total
			c.mu.Unlock()
			return fmt.Errorf("%w: %d of %d finished: %w", ErrEmitTimeout, done, total, err)
		}
	}
	// The last finisher may still be inside its critical section.
	c.mu.Lock()
	c.mu.Unlock()
	c.owner.put(c)
	return nil
}

// completionPool is a fixed set of completion objects, each with its own
// pre-built semaphore. The arena only tracks which slots are taken.
type completionPool struct {
	arena *pool.Arena[struct{}]
	slots []completion
}

func newCompletionPool(capacity, maxWaiters int) *completionPool {
	p := &completionPool{
		arena: pool.NewArena[struct{}]("completions", capacity),
		slots: make([]completion, capacity),
	}
	for i := range p.slots {
		p.slots[i].sem = rtos.NewSemaphore(int64(maxWaiters))
		p.slots[i].owner = p
	}
	return p
}

func (p *completionPool) get(total int) (*completion, error) {
	h, _, err := p.arena.Alloc()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	c := &p.slots[h.Index()]
	c.mu.Lock()
	c.handle = h
	c.total = total
	c.done = 0
	c.gaveUp = false
	c.sem.Reset()
	c.mu.Unlock()
	return c, nil
}

func (p *completionPool) put(c *completion) {
	// A second free is rejected by the arena's generation check.
	_ = p.arena.Free(c.handle)
}

func (p *completionPool) stats() pool.Stats { return p.arena.Stats() }
