package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sigslot/internal/signal"
)

func TestHubRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("tick", map[string]int{"i": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.JSONEq(t, `{"i":4}`, string(since[0].Data))
}

func TestHubSubscribeAndCancel(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()

	h.Publish("hello", nil)
	select {
	case ev := <-ch:
		assert.Equal(t, "hello", ev.Type)
		assert.Equal(t, "{}", string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")
	cancel()

	// Publishing after cancel must not panic.
	h.Publish("after", nil)
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(4)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish("flood", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestHubDispatchFault(t *testing.T) {
	h := NewHub(4)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.DispatchFault(signal.Fault{
		Signal:     signal.SignalID(1<<32 | 3),
		SignalName: "temperature",
		Receiver:   signal.ReceiverID(1<<32 | 1),
		Strategy:   signal.StrategyThreadQueue,
		Err:        signal.ErrQueueFull,
		At:         at,
	})

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, TypeDispatchFault, snap[0].Type)
	assert.Equal(t, at, snap[0].At)

	var p FaultPayload
	require.NoError(t, json.Unmarshal(snap[0].Data, &p))
	assert.Equal(t, "temperature", p.SignalName)
	assert.Equal(t, signal.StrategyThreadQueue.String(), p.Strategy)
	assert.Equal(t, signal.ErrQueueFull.Error(), p.Error)
	assert.NotEmpty(t, p.Receiver)
}

func TestTee(t *testing.T) {
	assert.Nil(t, Tee())
	assert.Nil(t, Tee(nil, nil))

	var got []string
	a := signal.FaultSinkFunc(func(f signal.Fault) { got = append(got, "a:"+f.Err.Error()) })
	b := signal.FaultSinkFunc(func(f signal.Fault) { got = append(got, "b:"+f.Err.Error()) })

	single := Tee(nil, a)
	single.DispatchFault(signal.Fault{Err: errors.New("x")})
	assert.Equal(t, []string{"a:x"}, got)

	got = nil
	Tee(a, nil, b).DispatchFault(signal.Fault{Err: errors.New("y")})
	assert.Equal(t, []string{"a:y", "b:y"}, got)
}
