package pool

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfMemory is returned when every slot of a pool is in use.
	ErrOutOfMemory = errors.New("pool exhausted")
	// ErrInvalidHandle is returned for handles that were never issued by the pool
	// or that refer to a slot which has since been reused.
	ErrInvalidHandle = errors.New("invalid pool handle")
	// ErrDoubleFree is returned when a handle is released twice.
	ErrDoubleFree = errors.New("double free")
)

// Handle addresses a slot in an Arena. The low 32 bits hold the slot index
// plus one, the high 32 bits the slot generation at allocation time. The zero
// Handle is never issued.
type Handle uint64

func makeHandle(index int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index+1)))
}

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool { return h == 0 }

// Index returns the slot index, or -1 for the null handle.
func (h Handle) Index() int { return int(uint32(h)) - 1 }

// Generation returns the slot generation the handle was issued with.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

func (h Handle) String() string {
	if h.IsZero() {
		return "nil"
	}
	return fmt.Sprintf("%d.%d", h.Index(), h.Generation())
}

// Stats is a point-in-time view of a pool's usage.
type Stats struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	InUse    int    `json:"in_use"`
	Peak     int    `json:"peak"`
	Allocs   uint64 `json:"allocs"`
	Frees    uint64 `json:"frees"`
	Failures uint64 `json:"failures"`

	// LargestFree is the biggest contiguous free range; byte pools only.
	LargestFree int `json:"largest_free,omitempty"`
}

type arenaSlot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Arena is a fixed-capacity slot allocator. Freed slots bump their
// generation so stale handles are rejected instead of aliasing the next
// occupant. All methods are safe for concurrent use; the returned value
// pointers are stable for the life of the arena and are guarded by the
// caller's own locking.
type Arena[T any] struct {
	name string

	mu    sync.Mutex
	slots []arenaSlot[T]
	free  []int32

	inUse    int
	peak     int
	allocs   uint64
	frees    uint64
	failures uint64
}

// NewArena creates an arena with room for capacity values.
func NewArena[T any](name string, capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	a := &Arena[T]{
		name:  name,
		slots: make([]arenaSlot[T], capacity),
		free:  make([]int32, capacity),
	}
	// Lowest index is handed out first.
	for i := range a.free {
		a.free[i] = int32(capacity - 1 - i)
	}
	return a
}

// Alloc reserves a zeroed slot.
func (a *Arena[T]) Alloc() (Handle, *T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.free)
	if n == 0 {
		a.failures++
		return 0, nil, fmt.Errorf("%s: %w", a.name, ErrOutOfMemory)
	}
	idx := int(a.free[n-1])
	a.free = a.free[:n-1]

	s := &a.slots[idx]
	s.used = true
	a.inUse++
	a.allocs++
	if a.inUse > a.peak {
		a.peak = a.inUse
	}
	return makeHandle(idx, s.gen), &s.value, nil
}

// Free releases the slot addressed by h and zeroes its value.
func (a *Arena[T]) Free(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := h.Index()
	if idx < 0 || idx >= len(a.slots) {
		return fmt.Errorf("%s: free %s: %w", a.name, h, ErrInvalidHandle)
	}
	s := &a.slots[idx]
	if !s.used || s.gen != h.Generation() {
		if !s.used && s.gen == h.Generation()+1 {
			return fmt.Errorf("%s: free %s: %w", a.name, h, ErrDoubleFree)
		}
		return fmt.Errorf("%s: free %s: %w", a.name, h, ErrInvalidHandle)
	}

	var zero T
	s.value = zero
	s.used = false
	s.gen++
	a.free = append(a.free, int32(idx))
	a.inUse--
	a.frees++
	return nil
}

// Get returns the value addressed by h if the handle is still current.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := h.Index()
	if idx < 0 || idx >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if !s.used || s.gen != h.Generation() {
		return nil, false
	}
	return &s.value, true
}

// Live reports whether h addresses an allocated slot.
func (a *Arena[T]) Live(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}

// Cap returns the fixed capacity.
func (a *Arena[T]) Cap() int { return len(a.slots) }

// Stats returns usage counters.
func (a *Arena[T]) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Name:     a.name,
		Capacity: len(a.slots),
		InUse:    a.inUse,
		Peak:     a.peak,
		Allocs:   a.allocs,
		Frees:    a.frees,
		Failures: a.failures,
	}
}
