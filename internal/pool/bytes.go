package pool

import (
	"fmt"
	"sort"
	"sync"
)

const byteAlign = 8

type extent struct {
	off, size int
}

// BytePool hands out byte ranges of a fixed-size region using first-fit
// placement. Adjacent free ranges are merged on release.
type BytePool struct {
	name     string
	capacity int

	mu       sync.Mutex
	free     []extent // sorted by offset
	live     map[int]int
	inUse    int
	peak     int
	allocs   uint64
	frees    uint64
	failures uint64
}

// NewBytePool creates a pool managing capacity bytes.
func NewBytePool(name string, capacity int) *BytePool {
	p := &BytePool{
		name:     name,
		capacity: capacity,
		live:     make(map[int]int),
	}
	if capacity > 0 {
		p.free = []extent{{off: 0, size: capacity}}
	}
	return p
}

func alignUp(n int) int {
	if n <= 0 {
		return byteAlign
	}
	return (n + byteAlign - 1) &^ (byteAlign - 1)
}

// Alloc reserves size bytes and returns the offset of the range.
func (p *BytePool) Alloc(size int) (int, error) {
	size = alignUp(size)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, e := range p.free {
		if e.size < size {
			continue
		}
		off := e.off
		if e.size == size {
			p.free = append(p.free[:i], p.free[i+1:]...)
		} else {
			p.free[i] = extent{off: e.off + size, size: e.size - size}
		}
		p.live[off] = size
		p.inUse += size
		p.allocs++
		if p.inUse > p.peak {
			p.peak = p.inUse
		}
		return off, nil
	}
	p.failures++
	return 0, fmt.Errorf("%s: %d bytes: %w", p.name, size, ErrOutOfMemory)
}

// Free returns the range starting at off.
func (p *BytePool) Free(off int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	size, ok := p.live[off]
	if !ok {
		return fmt.Errorf("%s: free offset %d: %w", p.name, off, ErrDoubleFree)
	}
	delete(p.live, off)
	p.inUse -= size
	p.frees++

	i := sort.Search(len(p.free), func(i int) bool { return p.free[i].off > off })
	p.free = append(p.free, extent{})
	copy(p.free[i+1:], p.free[i:])
	p.free[i] = extent{off: off, size: size}

	// Merge with the following extent, then the preceding one.
	if i+1 < len(p.free) && p.free[i].off+p.free[i].size == p.free[i+1].off {
		p.free[i].size += p.free[i+1].size
		p.free = append(p.free[:i+1], p.free[i+2:]...)
	}
	if i > 0 && p.free[i-1].off+p.free[i-1].size == p.free[i].off {
		p.free[i-1].size += p.free[i].size
		p.free = append(p.free[:i], p.free[i+1:]...)
	}
	return nil
}

func (p *BytePool) largestLocked() int {
	largest := 0
	for _, e := range p.free {
		if e.size > largest {
			largest = e.size
		}
	}
	return largest
}

// Stats reports usage in bytes.
func (p *BytePool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:     p.name,
		Capacity: p.capacity,
		InUse:    p.inUse,
		Peak:     p.peak,
		Allocs:   p.allocs,
		Frees:    p.frees,
		Failures: p.failures,

		LargestFree: p.largestLocked(),
	}
}
