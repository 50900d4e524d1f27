package signal

import (
	"fmt"

	"github.com/mattjoyce/sigslot/internal/rtos"
)

// affinity is everything the delivery policy needs to know about one
// receiver relative to the emitting thread.
type affinity struct {
	receiver      bool
	ownQueue      bool
	thread        bool
	threadQueue   bool
	callerIsOwner bool
}

func affinityOf(r Receiver, caller rtos.ThreadID) affinity {
	if r == nil {
		return affinity{}
	}
	a := affinity{receiver: true, ownQueue: r.HasQueue()}
	if t := r.OwningThread(); t != nil {
		a.thread = true
		a.threadQueue = t.HasQueue()
		a.callerIsOwner = t.ID() != 0 && t.ID() == caller
	}
	return a
}

// usableThread means the owning thread can take the package right now.
func (a affinity) usableThread() bool {
	return a.thread && a.threadQueue && !a.callerIsOwner
}

type deliveryRule struct {
	mode     Mode
	when     func(affinity) bool
	strategy Strategy
}

func always(affinity) bool { return true }

// deliveryRules is evaluated top to bottom; the first rule for the declared
// mode whose condition holds wins. Every mode ends in an unconditional rule.
var deliveryRules = []deliveryRule{
	{ModeDirect, always, StrategyDirect},

	{ModeObjectQueue, func(a affinity) bool { return a.ownQueue }, StrategyReceiverQueue},
	{ModeObjectQueue, always, StrategyDirect},

	{ModeThreadQueue, affinity.usableThread, StrategyThreadQueue},
	{ModeThreadQueue, always, StrategyDirect},

	// Enqueueing to ourselves and then waiting would never finish.
	{ModeBlockingQueue, func(a affinity) bool { return a.thread && a.callerIsOwner }, StrategyBlockingDirect},
	{ModeBlockingQueue, affinity.usableThread, StrategyBlockingThreadQueue},
	{ModeBlockingQueue, func(a affinity) bool { return a.ownQueue && !a.thread }, StrategyBlockingReceiverQueue},
	{ModeBlockingQueue, always, StrategyBlockingDirect},

	{ModeAuto, affinity.usableThread, StrategyThreadQueue},
	{ModeAuto, func(a affinity) bool { return a.ownQueue }, StrategyReceiverQueue},
	{ModeAuto, always, StrategyDirect},
}

// resolve picks the execution strategy for one receiver node. Free functions
// run inline, keeping the blocking flavour so the emitter's count matches.
func resolve(mode Mode, a affinity) Strategy {
	if !a.receiver {
		if mode == ModeBlockingQueue {
			return StrategyBlockingDirect
		}
		return StrategyDirect
	}
	for _, rule := range deliveryRules {
		if rule.mode == mode && rule.when(a) {
			return rule.strategy
		}
	}
	return StrategyDirect
}

// validate rejects, at connect time, explicit modes whose required
// capabilities are missing. Later capability changes are handled by the
// fallback rows of deliveryRules.
func validate(mode Mode, r Receiver) error {
	if r == nil {
		return nil
	}
	a := affinityOf(r, 0)
	switch mode {
	case ModeObjectQueue:
		if !a.ownQueue {
			return ErrReceiverHasNoQueue
		}
	case ModeThreadQueue:
		if !a.thread {
			return ErrReceiverHasNoOwningThread
		}
		if !a.threadQueue {
			return ErrOwningThreadHasNoQueue
		}
	case ModeBlockingQueue:
		if a.thread && !a.threadQueue {
			return ErrOwningThreadHasNoQueue
		}
		if !a.thread && !a.ownQueue {
			return ErrReceiverHasNoQueue
		}
	case ModeAuto, ModeDirect:
	default:
		return fmt.Errorf("unknown delivery mode %s", mode)
	}
	return nil
}
