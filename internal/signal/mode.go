package signal

import (
	"fmt"
	"strings"
)

// Mode is the delivery mode declared when connecting.
type Mode uint8

const (
	ModeAuto Mode = iota
	ModeDirect
	ModeObjectQueue
	ModeThreadQueue
	ModeBlockingQueue
)

var modeNames = map[Mode]string{
	ModeAuto:          "auto",
	ModeDirect:        "direct",
	ModeObjectQueue:   "object",
	ModeThreadQueue:   "thread",
	ModeBlockingQueue: "blocking",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts the names produced by Mode.String. The empty string is
// ModeAuto.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeAuto, nil
	}
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeAuto, fmt.Errorf("unknown delivery mode %q (want auto, direct, object, thread or blocking)", s)
}

// Strategy is the concrete execution path chosen for one receiver on one emit.
type Strategy uint8

const (
	StrategyDirect Strategy = iota
	StrategyReceiverQueue
	StrategyThreadQueue
	StrategyBlockingDirect
	StrategyBlockingReceiverQueue
	StrategyBlockingThreadQueue
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyReceiverQueue:
		return "receiver_queue"
	case StrategyThreadQueue:
		return "thread_queue"
	case StrategyBlockingDirect:
		return "blocking_direct"
	case StrategyBlockingReceiverQueue:
		return "blocking_receiver_queue"
	case StrategyBlockingThreadQueue:
		return "blocking_thread_queue"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// IsBlocking reports whether the emitter waits for this delivery.
func (s Strategy) IsBlocking() bool { return s >= StrategyBlockingDirect }

// NonBlocking maps a blocking strategy to the same path without the wait.
func (s Strategy) NonBlocking() Strategy {
	if s.IsBlocking() {
		return s - StrategyBlockingDirect
	}
	return s
}
