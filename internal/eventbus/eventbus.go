// Package eventbus is a process-wide broadcast bus for pool lifecycle
// events (opening, success with version, idle dormant, unstable warning,
// failures) and password-materialization stderr lines. New subscribers
// replay everything retained so far, in order, before receiving live
// events, the shape an observer bridging these events out over a
// WebSocket or SSE connection needs.
//
// Generalized from the client-registry/broadcast-channel pattern used for
// server-sent-event fan-out elsewhere in this codebase's lineage: a map of
// subscriber channels that Publish fans out to synchronously under the
// bus mutex, buffered per subscriber so one slow reader cannot stall the
// others.
package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle notification. Kind is one of the Kind* constants
// below; Subject identifies the (connection, database) pair the event
// concerns, empty for bus-wide events.
type Event struct {
	ID      uuid.UUID
	Kind    string
	Subject string
	Message string
	Time    time.Time
}

const (
	KindOpening         = "opening_pool"
	KindSuccess         = "pool_ready"
	KindDormant         = "pool_dormant"
	KindUnstable        = "pool_unstable"
	KindFailure         = "pool_failure"
	KindPasswordCmdLine = "password_cmd_stderr"
)

// defaultReplayLimit bounds how many retained events a new subscriber
// replays; older events are dropped from the ring buffer.
const defaultReplayLimit = 256

// defaultSubscriberBuffer is the per-subscriber channel depth. A
// subscriber that falls this far behind is dropped rather than allowed to
// block the broadcaster.
const defaultSubscriberBuffer = 64

// Bus is a broadcast channel with replay-from-start semantics.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string]chan Event
	retained    []Event
	replayLimit int
	subBuffer   int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan Event),
		replayLimit: defaultReplayLimit,
		subBuffer:   defaultSubscriberBuffer,
	}
}

// Publish appends event to the retained ring buffer and fans it out to
// every current subscriber. A subscriber whose buffer is full is dropped
// and its Unsubscribe becomes a no-op; it must re-Subscribe to resume
// (replaying everything retained, including the event it missed).
func (b *Bus) Publish(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.retained = append(b.retained, e)
	if len(b.retained) > b.replayLimit {
		b.retained = b.retained[len(b.retained)-b.replayLimit:]
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Subscribe registers a new subscriber and returns a channel that first
// replays every retained event, in order, then streams live events. Call
// the returned unsubscribe function when done.
func (b *Bus) Subscribe() (events <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	id := uuid.New().String()
	ch := make(chan Event, b.subBuffer+len(b.retained))
	for _, e := range b.retained {
		ch <- e
	}
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			close(existing)
			delete(b.subscribers, id)
		}
	}

	return ch, unsubscribe
}
