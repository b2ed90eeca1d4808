package manager

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultEventBuffer is the subscriber channel size used when Subscribe gets n <= 0.
const DefaultEventBuffer = 64

// Reason tags why a status-changed event was emitted.
type Reason int

const (
	ReasonUserStart Reason = iota + 1
	ReasonUserStop
	ReasonUnexpectedExit
	ReasonConfigurationError
	ReasonLaunchError
	ReasonTerminationError
)

func (r Reason) String() string {
	switch r {
	case ReasonUserStart:
		return "user_start"
	case ReasonUserStop:
		return "user_stop"
	case ReasonUnexpectedExit:
		return "unexpected_exit"
	case ReasonConfigurationError:
		return "configuration_error"
	case ReasonLaunchError:
		return "launch_error"
	case ReasonTerminationError:
		return "termination_error"
	default:
		return "unknown"
	}
}

// MarshalText renders the reason name in JSON and YAML output.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Event is delivered to subscribers on every status decision for an entry.
type Event struct {
	ID       ID        `json:"id"`
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	Reason   Reason    `json:"reason"`
	Err      error     `json:"-"`
	PID      int       `json:"pid,omitempty"`
	Instance uint64    `json:"instance,omitempty"`
	At       time.Time `json:"at"`
}

type subscriber struct {
	ch      chan Event
	dropped uint64
}

// hub fans events out to subscribers without ever blocking the publisher.
type hub struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	closed bool
	log    *slog.Logger
}

func newHub(log *slog.Logger) *hub {
	return &hub{subs: make(map[int]*subscriber), log: log}
}

func (h *hub) subscribe(n int) (<-chan Event, func()) {
	if n <= 0 {
		n = DefaultEventBuffer
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, n)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = &subscriber{ch: ch}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if s, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			h.log.Warn("event subscriber is not keeping up; event dropped",
				slog.String("entry", ev.Name), slog.String("reason", ev.Reason.String()),
				slog.Uint64("dropped", s.dropped))
		}
	}
}

// close ends every subscription; later publishes are ignored.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
