package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Event is one outbound SSE entry: an event kind (message, ping,
// endpoint, session_ready), its id, and its payload.
type Event struct {
	ID      string
	Kind    string
	Payload []byte

	seq uint64
}

// EventBuffer is the bounded FIFO ring of outbound SSE events owned by a
// session. Event ids are "{sessionID}-{counter}" (or bare
// "{counter}" when sessionID is empty); counters are monotonic and never
// reused. On overflow the oldest entry is evicted, making its id
// unresumable — backpressure by eviction, never by blocking.
type EventBuffer struct {
	mu        sync.Mutex
	sessionID string
	capacity  int
	counter   uint64
	entries   []Event
	ch        chan Event
}

// NewEventBuffer constructs an empty buffer with the given ring capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &EventBuffer{capacity: capacity, ch: make(chan Event, capacity)}
}

// BindSessionID sets the session id used to format subsequent event ids.
func (b *EventBuffer) BindSessionID(id string) {
	b.mu.Lock()
	b.sessionID = id
	b.mu.Unlock()
}

// Append assigns the next monotonic id to an event and stores it in the
// ring, evicting the oldest entry if full. It also offers the event to
// any live tailing reader via a best-effort, non-blocking send — the
// POST handler appending must never block on SSE reader backpressure.
func (b *EventBuffer) Append(kind string, payload []byte) Event {
	b.mu.Lock()
	b.counter++
	seq := b.counter
	id := strconv.FormatUint(seq, 10)
	if b.sessionID != "" {
		id = fmt.Sprintf("%s-%d", b.sessionID, seq)
	}
	ev := Event{ID: id, Kind: kind, Payload: payload, seq: seq}

	if len(b.entries) >= b.capacity {
		b.entries = b.entries[1:]
	}
	b.entries = append(b.entries, ev)
	b.mu.Unlock()

	select {
	case b.ch <- ev:
	default:
	}
	return ev
}

// Live returns the channel live events are pushed to. Intended for a
// single concurrent SSE reader per session.
func (b *EventBuffer) Live() <-chan Event { return b.ch }

// ReplayAfter returns every buffered event whose sequence is strictly
// after the given Last-Event-ID, in order. ok is false if lastEventID is
// malformed, or if events after it were already evicted (its sequence is
// below the one just before the oldest retained entry); the caller MAY
// then reset the stream (Reconnect semantics).
func (b *EventBuffer) ReplayAfter(lastEventID string) (events []Event, ok bool) {
	if lastEventID == "" {
		b.mu.Lock()
		defer b.mu.Unlock()
		out := make([]Event, len(b.entries))
		copy(out, b.entries)
		return out, true
	}

	seq, parseErr := parseSeq(lastEventID)
	if parseErr != nil {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) > 0 && seq < b.entries[0].seq-1 {
		// Events after the requested id have been evicted; caller may
		// choose to reset with a fresh session.
		return nil, false
	}

	var out []Event
	for _, e := range b.entries {
		if e.seq > seq {
			out = append(out, e)
		}
	}
	return out, true
}

func parseSeq(eventID string) (uint64, error) {
	s := eventID
	if idx := strings.LastIndexByte(eventID, '-'); idx >= 0 {
		s = eventID[idx+1:]
	}
	return strconv.ParseUint(s, 10, 64)
}
