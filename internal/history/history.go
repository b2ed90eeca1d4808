package history

import (
	"context"
	"time"

	"github.com/loykin/procdash/internal/manager"
)

// Event is one lifecycle decision for an entry, as exported to a history store.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	EntryID    uint64    `json:"entry_id"`
	Name       string    `json:"name"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	PID        int       `json:"pid,omitempty"`
	Instance   uint64    `json:"instance,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FromManager converts a manager status event.
func FromManager(ev manager.Event) Event {
	e := Event{
		OccurredAt: ev.At.UTC(),
		EntryID:    uint64(ev.ID),
		Name:       ev.Name,
		Reason:     ev.Reason.String(),
		Status:     ev.Status.String(),
		PID:        ev.PID,
		Instance:   ev.Instance,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
