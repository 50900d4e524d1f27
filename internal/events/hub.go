package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/sigslot/internal/signal"
)

// Event types published by the host service.
const (
	TypeDispatchFault = "dispatch.fault"
	TypeProbeError    = "probe.error"
	TypeThreadStopped = "thread.stopped"
)

// Event is one entry in the hub's ring. Data is a JSON payload.
type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

// FaultPayload is the Data of a dispatch.fault event.
type FaultPayload struct {
	Signal     string `json:"signal"`
	SignalName string `json:"signal_name,omitempty"`
	Receiver   string `json:"receiver,omitempty"`
	Strategy   string `json:"strategy"`
	Error      string `json:"error"`
}

// NewFaultPayload flattens a dispatch fault for JSON consumers.
func NewFaultPayload(f signal.Fault) FaultPayload {
	p := FaultPayload{
		Signal:     f.Signal.String(),
		SignalName: f.SignalName,
		Strategy:   f.Strategy.String(),
	}
	if !f.Receiver.IsZero() {
		p.Receiver = f.Receiver.String()
	}
	if f.Err != nil {
		p.Error = f.Err.Error()
	}
	return p
}

// NewHub returns a hub retaining the last capacity events (100 if <= 0).
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish records an event and offers it to every subscriber. Slow
// subscribers miss events rather than block the publisher.
func (h *Hub) Publish(eventType string, data any) {
	h.publishAt(eventType, data, time.Now())
}

// DispatchFault publishes a dispatch.fault event. Hub satisfies
// signal.FaultSink.
func (h *Hub) DispatchFault(f signal.Fault) {
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	h.publishAt(TypeDispatchFault, NewFaultPayload(f), at)
}

func (h *Hub) publishAt(eventType string, data any, at time.Time) {
	id := h.nextID.Add(1)

	payload := []byte("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   at.UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
