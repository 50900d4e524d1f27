package pool

import (
	"fmt"
)

// Class identifies which pool a Lease was taken from.
type Class uint8

const (
	ClassSmall Class = iota
	ClassMedium
	ClassLarge
	ClassBytes
)

func (c Class) String() string {
	switch c {
	case ClassSmall:
		return "small"
	case ClassMedium:
		return "medium"
	case ClassLarge:
		return "large"
	case ClassBytes:
		return "bytes"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Lease records where a block of memory came from so it can be returned.
type Lease struct {
	Class  Class
	Handle Handle
	Offset int
	Size   int
}

// AllocatorConfig sizes the block classes and the byte pool.
type AllocatorConfig struct {
	SmallSize    int
	SmallCount   int
	MediumSize   int
	MediumCount  int
	LargeSize    int
	LargeCount   int
	ByteCapacity int
}

// DefaultAllocatorConfig matches the reference board budget:
// 64x32B, 32x64B, 16x128B blocks and a 1 KiB byte pool.
func DefaultAllocatorConfig() AllocatorConfig {
	return AllocatorConfig{
		SmallSize:    32,
		SmallCount:   64,
		MediumSize:   64,
		MediumCount:  32,
		LargeSize:    128,
		LargeCount:   16,
		ByteCapacity: 1024,
	}
}

type blockClass struct {
	class Class
	size  int
	arena *Arena[struct{}]
}

// Allocator serves variable-size requests from fixed block classes, falling
// back to a byte-granularity pool for anything the blocks cannot hold.
type Allocator struct {
	classes []blockClass
	bytes   *BytePool
}

// NewAllocator builds the block classes described by cfg.
func NewAllocator(cfg AllocatorConfig) (*Allocator, error) {
	if cfg.SmallSize <= 0 || cfg.MediumSize <= cfg.SmallSize || cfg.LargeSize <= cfg.MediumSize {
		return nil, fmt.Errorf("block sizes must be positive and strictly increasing (got %d/%d/%d)",
			cfg.SmallSize, cfg.MediumSize, cfg.LargeSize)
	}
	return &Allocator{
		classes: []blockClass{
			{class: ClassSmall, size: cfg.SmallSize, arena: NewArena[struct{}]("blocks.small", cfg.SmallCount)},
			{class: ClassMedium, size: cfg.MediumSize, arena: NewArena[struct{}]("blocks.medium", cfg.MediumCount)},
			{class: ClassLarge, size: cfg.LargeSize, arena: NewArena[struct{}]("blocks.large", cfg.LargeCount)},
		},
		bytes: NewBytePool("bytes", cfg.ByteCapacity),
	}, nil
}

// Allocate reserves size bytes from the smallest class that fits. An
// exhausted class falls through to the next larger one, and finally to the
// byte pool.
func (a *Allocator) Allocate(size int) (Lease, error) {
	for _, bc := range a.classes {
		if size > bc.size {
			continue
		}
		h, _, err := bc.arena.Alloc()
		if err == nil {
			return Lease{Class: bc.class, Handle: h, Size: bc.size}, nil
		}
	}
	off, err := a.bytes.Alloc(size)
	if err != nil {
		return Lease{}, fmt.Errorf("allocate %d bytes: %w", size, err)
	}
	return Lease{Class: ClassBytes, Offset: off, Size: alignUp(size)}, nil
}

// Release returns a lease to its pool.
func (a *Allocator) Release(l Lease) error {
	if l.Class == ClassBytes {
		return a.bytes.Free(l.Offset)
	}
	if int(l.Class) >= len(a.classes) {
		return fmt.Errorf("release: unknown class %s: %w", l.Class, ErrInvalidHandle)
	}
	return a.classes[l.Class].arena.Free(l.Handle)
}

// Stats returns one entry per block class followed by the byte pool.
func (a *Allocator) Stats() []Stats {
	out := make([]Stats, 0, len(a.classes)+1)
	for _, bc := range a.classes {
		out = append(out, bc.arena.Stats())
	}
	return append(out, a.bytes.Stats())
}
