package signal

import (
	"reflect"

	"github.com/mattjoyce/sigslot/internal/pool"
)

type slotKind uint8

const (
	slotFunc slotKind = iota
	slotMethod
)

// slot is the typed, closed set of handler shapes a signal can call: a free
// function or a method bound through its receiver.
type slot[A any] struct {
	kind slotKind
	fn   func(A)
	call func(r Receiver, args A)
}

func funcSlot[A any](fn func(A)) *slot[A] {
	return &slot[A]{kind: slotFunc, fn: fn}
}

func methodSlot[R Receiver, A any](method func(R, A)) *slot[A] {
	return &slot[A]{
		kind: slotMethod,
		call: func(r Receiver, args A) { method(r.(R), args) },
	}
}

func (s *slot[A]) invoke(r Receiver, args A) {
	if s.kind == slotFunc {
		s.fn(args)
		return
	}
	s.call(r, args)
}

// packageHeader approximates the fixed part of a call package as laid out
// on the device: receiver reference, handler reference and dispatch table.
const (
	pointerSize   = 8
	packageHeader = 3 * pointerSize
)

func packageSize[A any](blocking bool) int {
	n := packageHeader + int(reflect.TypeFor[A]().Size())
	if blocking {
		n += pointerSize
	}
	return n
}

// callPackage carries one invocation across a queue boundary. It owns an
// argument snapshot and a lease on package memory, plus a completion for the
// blocking shape.
type callPackage[A any] struct {
	receiver Receiver
	slot     *slot[A]
	args     A
	lease    pool.Lease
	alloc    *pool.Allocator
	comp     *completion
	released bool
}

// Execute invokes the handler unless the receiver has been torn down.
func (p *callPackage[A]) Execute() bool {
	if p.receiver != nil && !p.receiver.IsLive() {
		return false
	}
	p.slot.invoke(p.receiver, p.args)
	return true
}

// Destroy signals the completion, if any, then returns the package memory.
func (p *callPackage[A]) Destroy() {
	if p.released {
		return
	}
	p.released = true
	if p.comp != nil {
		p.comp.finish()
		p.comp = nil
	}
	_ = p.alloc.Release(p.lease)
	var zero A
	p.args = zero
	p.receiver = nil
}
