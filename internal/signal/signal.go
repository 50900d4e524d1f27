package signal

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/sigslot/internal/rtos"
)

// Signal is a typed emission point. It stores only its identity; every
// connection lives in the Context registry. Close (or garbage collection of
// an unclosed Signal) removes all of its connections.
type Signal[A any] struct {
	ctx     *Context
	id      SignalID
	name    string
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

// New allocates a signal identity in c.
func New[A any](c *Context, name string) (*Signal[A], error) {
	if c == nil {
		return nil, ErrNullIdentity
	}
	id, err := c.newSignalID(name)
	if err != nil {
		return nil, fmt.Errorf("new signal %q: %w", name, err)
	}
	s := &Signal[A]{ctx: c, id: id, name: name}
	s.cleanup = runtime.AddCleanup(s, func(id SignalID) {
		_, _ = c.dropSignal(id)
	}, id)
	return s, nil
}

// ID returns the signal identity.
func (s *Signal[A]) ID() SignalID { return s.id }

// Name returns the name given at construction.
func (s *Signal[A]) Name() string { return s.name }

// Connections returns the number of live connections.
func (s *Signal[A]) Connections() int {
	if s.closed.Load() {
		return 0
	}
	return s.ctx.reg.count(s.id)
}

// Connect registers a free function. Free functions always run on the
// emitting thread; ModeBlockingQueue only makes them count toward the wait.
func (s *Signal[A]) Connect(fn func(A), mode Mode) error {
	if fn == nil {
		return fmt.Errorf("connect %s: %w", s.name, ErrNullIdentity)
	}
	return s.connect(nil, 0, handlerOf(fn), mode, funcSlot(fn))
}

// Disconnect removes a free-function connection and returns how many were
// removed.
func (s *Signal[A]) Disconnect(fn func(A)) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("disconnect %s: %w", s.name, ErrNullIdentity)
	}
	return s.disconnect(0, handlerOf(fn))
}

// ConnectMethod registers method to be called on r. The mode is checked
// against r's capabilities now; see ErrReceiverHasNoQueue and friends.
func ConnectMethod[R Receiver, A any](s *Signal[A], r R, method func(R, A), mode Mode) error {
	if s == nil {
		return ErrNullIdentity
	}
	if method == nil || isNil(r) || r.ReceiverID().IsZero() {
		return fmt.Errorf("connect %s: %w", s.name, ErrNullIdentity)
	}
	if !r.IsLive() {
		return fmt.Errorf("connect %s: %w", s.name, ErrObjectDestroyed)
	}
	return s.connect(r, r.ReceiverID(), handlerOf(method), mode, methodSlot(method))
}

// DisconnectMethod removes the (r, method) connection.
func DisconnectMethod[R Receiver, A any](s *Signal[A], r R, method func(R, A)) (int, error) {
	if s == nil {
		return 0, ErrNullIdentity
	}
	if method == nil || isNil(r) || r.ReceiverID().IsZero() {
		return 0, fmt.Errorf("disconnect %s: %w", s.name, ErrNullIdentity)
	}
	return s.disconnect(r.ReceiverID(), handlerOf(method))
}

func (s *Signal[A]) connect(r Receiver, rid ReceiverID, h HandlerID, mode Mode, sl *slot[A]) error {
	if s.closed.Load() {
		return fmt.Errorf("connect %s: %w", s.name, ErrObjectDestroyed)
	}
	if err := validate(mode, r); err != nil {
		return fmt.Errorf("connect %s (%s): %w", s.name, mode, err)
	}
	err := s.ctx.reg.insert(s.id, node{
		receiver:   r,
		receiverID: rid,
		handler:    h,
		mode:       mode,
		slot:       sl,
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.name, err)
	}
	return nil
}

func (s *Signal[A]) disconnect(rid ReceiverID, h HandlerID) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("disconnect %s: %w", s.name, ErrObjectDestroyed)
	}
	n, err := s.ctx.reg.remove(s.id, rid, h)
	if err != nil {
		return 0, fmt.Errorf("disconnect %s: %w", s.name, err)
	}
	return n, nil
}

// Close removes every connection and retires the identity. It returns the
// number of connections removed.
func (s *Signal[A]) Close() (int, error) {
	if s.ctx.reg.lock.HoldsRead() {
		return 0, fmt.Errorf("close %s: %w", s.name, ErrReentrantMutation)
	}
	if !s.closed.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("close %s: %w", s.name, ErrObjectDestroyed)
	}
	s.cleanup.Stop()
	n, err := s.ctx.dropSignal(s.id)
	if err != nil {
		return n, fmt.Errorf("close %s: %w", s.name, err)
	}
	return n, nil
}

// Call emits args using the Context's default blocking timeout.
func (s *Signal[A]) Call(args A) error {
	return s.Emit(context.Background(), args)
}

// Emit delivers args to every connection. Failures for individual receivers
// do not stop delivery to the rest; the last one is returned. A signal with
// no connections returns ErrReceiverNotFound. When blocking-mode connections
// exist, Emit waits for them until ctx is done, or for the Context's emit
// timeout when ctx has no deadline.
func (s *Signal[A]) Emit(ctx context.Context, args A) error {
	if s == nil {
		return ErrNullIdentity
	}
	if s.closed.Load() {
		return fmt.Errorf("emit %s: %w", s.name, ErrObjectDestroyed)
	}

	c := s.ctx
	caller := rtos.CurrentThreadID()

	var (
		comp    *completion
		lastErr error
		faults  []Fault
	)
	fail := func(rid ReceiverID, st Strategy, err error) {
		err = fmt.Errorf("emit %s: %w", s.name, err)
		lastErr = err
		faults = append(faults, Fault{
			Signal:     s.id,
			SignalName: s.name,
			Receiver:   rid,
			Strategy:   st,
			Err:        err,
			At:         time.Now().UTC(),
		})
	}

	err := c.reg.walk(s.id, func(blocking int) {
		if blocking == 0 {
			return
		}
		cp, err := c.completions.get(blocking)
		if err != nil {
			// Deliver anyway, just without waiting.
			fail(0, StrategyBlockingDirect, err)
			return
		}
		comp = cp
	}, func(n *node) {
		st := resolve(n.mode, affinityOf(n.receiver, caller))
		var wait *completion
		if st.IsBlocking() {
			if comp == nil {
				st = st.NonBlocking()
			} else {
				wait = comp
			}
		}
		sl, ok := n.slot.(*slot[A])
		if !ok {
			if wait != nil {
				wait.finish()
			}
			fail(n.receiverID, st, ErrTypeMismatch)
			return
		}
		if err := s.dispatch(n.receiver, sl, args, st, wait); err != nil {
			fail(n.receiverID, st, err)
		}
	})
	if err != nil {
		return fmt.Errorf("emit %s: %w", s.name, err)
	}

	if comp != nil {
		wctx := ctx
		if _, ok := ctx.Deadline(); !ok && c.emitTimeout > 0 {
			var cancel context.CancelFunc
			wctx, cancel = context.WithTimeout(ctx, c.emitTimeout)
			defer cancel()
		}
		if err := comp.wait(wctx); err != nil {
			fail(0, StrategyBlockingThreadQueue, err)
		}
	}

	if len(faults) > 0 {
		c.report(faults)
	}
	return lastErr
}

// dispatch builds a call package and runs or enqueues it according to st.
// Any completion handed in is finished exactly once, whatever the outcome.
func (s *Signal[A]) dispatch(r Receiver, sl *slot[A], args A, st Strategy, comp *completion) error {
	lease, err := s.ctx.alloc.Allocate(packageSize[A](comp != nil))
	if err != nil {
		if comp != nil {
			comp.finish()
		}
		return fmt.Errorf("%w: call package: %w", ErrOutOfMemory, err)
	}
	p := &callPackage[A]{
		receiver: r,
		slot:     sl,
		args:     args,
		lease:    lease,
		alloc:    s.ctx.alloc,
		comp:     comp,
	}

	var posted bool
	switch st.NonBlocking() {
	case StrategyDirect:
		rtos.RunTask(p, s.ctx.logger)
		return nil
	case StrategyReceiverQueue:
		posted = r.Post(p)
	case StrategyThreadQueue:
		if t := r.OwningThread(); t != nil {
			posted = t.Post(p)
		}
	}
	if posted {
		return nil
	}
	p.Destroy()
	if !r.IsLive() {
		return ErrObjectDestroyed
	}
	return ErrQueueFull
}
