package signal

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mattjoyce/sigslot/internal/rtos"
)

//go:generate mockgen -destination=mocks/mock_receiver.go -package=mocks github.com/mattjoyce/sigslot/internal/signal Receiver,Thread

// Receiver is the capability contract of a connection target. The registry
// never owns a receiver; the owner must deregister it (Context.DestroyReceiver
// or Object.Destroy) before discarding it.
type Receiver interface {
	ReceiverID() ReceiverID
	HasQueue() bool
	Post(task rtos.Task) bool
	OwningThread() Thread
	IsLive() bool
}

// Thread is the capability contract of a receiver's affinity thread.
// *rtos.Thread satisfies it.
type Thread interface {
	HasQueue() bool
	Post(task rtos.Task) bool
	ID() rtos.ThreadID
}

// ObjectOption configures an Object.
type ObjectOption func(*Object)

// WithQueue gives the object its own task queue of the given depth.
func WithQueue(depth int) ObjectOption {
	return func(o *Object) {
		if depth > 0 {
			o.queue = rtos.NewQueue(o.name, depth)
		}
	}
}

// WithThread binds the object to an affinity thread.
func WithThread(t *rtos.Thread) ObjectOption {
	return func(o *Object) { o.thread = t }
}

// Object is a ready-made Receiver meant to be embedded by application types:
//
//	type Sensor struct {
//		*signal.Object
//	}
//
//	func (s *Sensor) OnSample(v int) { ... }
//
//	signal.ConnectMethod(sig, sensor, (*Sensor).OnSample, signal.ModeThreadQueue)
type Object struct {
	ctx    *Context
	id     ReceiverID
	name   string
	queue  *rtos.Queue
	thread *rtos.Thread
	live   atomic.Bool
}

// NewObject registers a new receiver identity.
func (c *Context) NewObject(name string, opts ...ObjectOption) (*Object, error) {
	id, err := c.NewReceiverID()
	if err != nil {
		return nil, fmt.Errorf("new object %q: %w", name, err)
	}
	o := &Object{ctx: c, id: id, name: name}
	for _, opt := range opts {
		opt(o)
	}
	o.live.Store(true)
	return o, nil
}

func (o *Object) ReceiverID() ReceiverID {
	if o == nil {
		return 0
	}
	return o.id
}

// Name returns the name given at construction.
func (o *Object) Name() string { return o.name }

func (o *Object) HasQueue() bool { return o.queue != nil }

func (o *Object) Post(task rtos.Task) bool {
	if o.queue == nil || !o.IsLive() {
		return false
	}
	return o.queue.TrySend(task)
}

func (o *Object) OwningThread() Thread {
	if o.thread == nil {
		return nil
	}
	return o.thread
}

func (o *Object) IsLive() bool {
	return o != nil && o.live.Load()
}

// Pending returns the number of packages waiting on the object's own queue.
func (o *Object) Pending() int {
	if o.queue == nil {
		return 0
	}
	return o.queue.Len()
}

// ProcessPending runs every package currently queued on the object's own
// queue and returns how many ran.
func (o *Object) ProcessPending() int {
	if o.queue == nil {
		return 0
	}
	return o.queue.Drain(func(t rtos.Task) { rtos.RunTask(t, o.ctx.logger) })
}

// Process blocks until one queued package is available and runs it.
func (o *Object) Process(ctx context.Context) error {
	if o.queue == nil {
		return ErrReceiverHasNoQueue
	}
	t, err := o.queue.Receive(ctx)
	if err != nil {
		return err
	}
	rtos.RunTask(t, o.ctx.logger)
	return nil
}

// Destroy marks the object dead, removes every connection that targets it and
// releases anything still waiting on its own queue. It returns the number of
// connections removed.
func (o *Object) Destroy() (int, error) {
	if o.ctx.reg.lock.HoldsRead() {
		return 0, ErrReentrantMutation
	}
	if !o.live.CompareAndSwap(true, false) {
		return 0, ErrObjectDestroyed
	}
	n, err := o.ctx.DestroyReceiver(o.id)
	if o.queue != nil {
		o.queue.Close()
		// Packages see a dead receiver and only release their resources.
		o.queue.Drain(func(t rtos.Task) { rtos.RunTask(t, o.ctx.logger) })
	}
	return n, err
}
