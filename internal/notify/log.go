// README: Notifier that only writes events to the process log.
package notify

import (
	"context"
	"log"
	"sync"
)

var logf = log.Printf

type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, e Event) error {
	logf("event %s recipient=%s trip=%s booking=%s", e.Type, e.RecipientID, e.TripID, e.BookingID)
	return nil
}

// Recorder keeps events in memory for inspection.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
