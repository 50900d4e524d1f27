package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/sigslot/internal/rtos"
)

type stubThread struct {
	id    rtos.ThreadID
	queue bool
}

func (t stubThread) HasQueue() bool      { return t.queue }
func (t stubThread) Post(rtos.Task) bool { return t.queue }
func (t stubThread) ID() rtos.ThreadID   { return t.id }

type stubReceiver struct {
	queue  bool
	thread *stubThread
}

func (r stubReceiver) ReceiverID() ReceiverID { return 1 }
func (r stubReceiver) HasQueue() bool         { return r.queue }
func (r stubReceiver) Post(rtos.Task) bool    { return r.queue }
func (r stubReceiver) IsLive() bool           { return true }

func (r stubReceiver) OwningThread() Thread {
	if r.thread == nil {
		return nil
	}
	return *r.thread
}

func TestResolve(t *testing.T) {
	const (
		owner rtos.ThreadID = 7
		other rtos.ThreadID = 9
	)
	withQueue := &stubThread{id: owner, queue: true}
	noQueue := &stubThread{id: owner}

	tests := []struct {
		name   string
		mode   Mode
		recv   Receiver
		caller rtos.ThreadID
		want   Strategy
	}{
		{"free function direct", ModeDirect, nil, other, StrategyDirect},
		{"free function queued falls to direct", ModeObjectQueue, nil, other, StrategyDirect},
		{"free function blocking", ModeBlockingQueue, nil, other, StrategyBlockingDirect},

		{"direct", ModeDirect, stubReceiver{queue: true, thread: withQueue}, other, StrategyDirect},

		{"object queue", ModeObjectQueue, stubReceiver{queue: true}, other, StrategyReceiverQueue},
		{"object queue fallback", ModeObjectQueue, stubReceiver{}, other, StrategyDirect},

		{"thread queue", ModeThreadQueue, stubReceiver{thread: withQueue}, other, StrategyThreadQueue},
		{"thread queue from owner", ModeThreadQueue, stubReceiver{thread: withQueue}, owner, StrategyDirect},
		{"thread queue without thread queue", ModeThreadQueue, stubReceiver{thread: noQueue}, other, StrategyDirect},
		{"thread queue without thread", ModeThreadQueue, stubReceiver{queue: true}, other, StrategyDirect},

		{"blocking from owner", ModeBlockingQueue, stubReceiver{thread: withQueue}, owner, StrategyBlockingDirect},
		{"blocking via thread", ModeBlockingQueue, stubReceiver{thread: withQueue}, other, StrategyBlockingThreadQueue},
		{"blocking via own queue", ModeBlockingQueue, stubReceiver{queue: true}, other, StrategyBlockingReceiverQueue},
		{"blocking thread without queue", ModeBlockingQueue, stubReceiver{queue: true, thread: noQueue}, other, StrategyBlockingDirect},
		{"blocking nothing", ModeBlockingQueue, stubReceiver{}, other, StrategyBlockingDirect},

		{"auto prefers thread", ModeAuto, stubReceiver{queue: true, thread: withQueue}, other, StrategyThreadQueue},
		{"auto own queue when owner calls", ModeAuto, stubReceiver{queue: true, thread: withQueue}, owner, StrategyReceiverQueue},
		{"auto own queue", ModeAuto, stubReceiver{queue: true}, other, StrategyReceiverQueue},
		{"auto direct", ModeAuto, stubReceiver{thread: noQueue}, other, StrategyDirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.mode, affinityOf(tt.recv, tt.caller)))
		})
	}
}

func TestValidate(t *testing.T) {
	withQueue := &stubThread{id: 3, queue: true}
	noQueue := &stubThread{id: 3}

	tests := []struct {
		name string
		mode Mode
		recv Receiver
		want error
	}{
		{"free function any mode", ModeThreadQueue, nil, nil},
		{"auto always", ModeAuto, stubReceiver{}, nil},
		{"direct always", ModeDirect, stubReceiver{}, nil},
		{"object queue ok", ModeObjectQueue, stubReceiver{queue: true}, nil},
		{"object queue missing", ModeObjectQueue, stubReceiver{}, ErrReceiverHasNoQueue},
		{"thread queue ok", ModeThreadQueue, stubReceiver{thread: withQueue}, nil},
		{"thread queue no thread", ModeThreadQueue, stubReceiver{queue: true}, ErrReceiverHasNoOwningThread},
		{"thread queue thread without queue", ModeThreadQueue, stubReceiver{thread: noQueue}, ErrOwningThreadHasNoQueue},
		{"blocking via thread ok", ModeBlockingQueue, stubReceiver{thread: withQueue}, nil},
		{"blocking via own queue ok", ModeBlockingQueue, stubReceiver{queue: true}, nil},
		{"blocking thread without queue", ModeBlockingQueue, stubReceiver{queue: true, thread: noQueue}, ErrOwningThreadHasNoQueue},
		{"blocking nothing", ModeBlockingQueue, stubReceiver{}, ErrReceiverHasNoQueue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.mode, tt.recv)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	assert.Error(t, validate(Mode(42), stubReceiver{}))
}

func TestStrategyHelpers(t *testing.T) {
	assert.True(t, StrategyBlockingThreadQueue.IsBlocking())
	assert.False(t, StrategyThreadQueue.IsBlocking())
	assert.Equal(t, StrategyThreadQueue, StrategyBlockingThreadQueue.NonBlocking())
	assert.Equal(t, StrategyReceiverQueue, StrategyBlockingReceiverQueue.NonBlocking())
	assert.Equal(t, StrategyDirect, StrategyBlockingDirect.NonBlocking())
	assert.Equal(t, StrategyDirect, StrategyDirect.NonBlocking())
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeAuto, ModeDirect, ModeObjectQueue, ModeThreadQueue, ModeBlockingQueue} {
		got, err := ParseMode(m.String())
		assert.NoError(t, err)
		assert.Equal(t, m, got)
	}
	got, err := ParseMode("")
	assert.NoError(t, err)
	assert.Equal(t, ModeAuto, got)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}
