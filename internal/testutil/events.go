// Shared helpers for asserting on published events.

package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/vrsandeep/tunedl/internal/events"
)

// Published is one recorded call to Publish.
type Published struct {
	Topic string
	Event events.Event
}

// EventRecorder is an events.Publisher that remembers everything it is given.
type EventRecorder struct {
	mu     sync.Mutex
	events []Published
	notify chan struct{}
}

func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

func (r *EventRecorder) Publish(topic string, ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, Published{Topic: topic, Event: ev})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// All returns a copy of every recorded event in publish order.
func (r *EventRecorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Published, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events whose type matches typ.
func (r *EventRecorder) OfType(typ events.Type) []Published {
	var out []Published
	for _, p := range r.All() {
		if p.Event.Type() == typ {
			out = append(out, p)
		}
	}
	return out
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until an event of type typ has been recorded or fails the
// test after timeout.
func (r *EventRecorder) WaitFor(t *testing.T, typ events.Type, timeout time.Duration) Published {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if found := r.OfType(typ); len(found) > 0 {
			return found[0]
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("Timed out waiting for %s event", typ)
			return Published{}
		}
	}
}
