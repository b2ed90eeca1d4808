package manager

import (
	"strconv"
	"sync"
	"time"
)

// ID identifies an entry for its whole life. IDs are never reused.
type ID uint64

func (id ID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseID parses the decimal form produced by String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return ID(v), err
}

// Status is the externally visible state of an entry. Transitions are
// synchronous for callers, so there is no starting/stopping state.
type Status int

const (
	StatusStopped Status = iota
	StatusRunning
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	default:
		return "stopped"
	}
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Entry is an immutable snapshot of a managed entry.
type Entry struct {
	ID        ID        `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	Status    Status    `json:"status" yaml:"status"`
	PID       int       `json:"pid,omitempty" yaml:"pid,omitempty"`
	Instance  uint64    `json:"instance,omitempty" yaml:"instance,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty" yaml:"stopped_at,omitempty"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Running is shorthand for Status == StatusRunning.
func (e Entry) Running() bool { return e.Status == StatusRunning }

// entry is the live record. mu guards every field below it; handle is set
// if and only if status is StatusRunning.
type entry struct {
	id ID

	mu        sync.Mutex
	name      string
	path      string
	status    Status
	handle    Handle
	instance  uint64
	startedAt time.Time
	stoppedAt time.Time
	lastErr   error
	removed   bool
}

func (e *entry) snapshotLocked() Entry {
	s := Entry{
		ID:        e.id,
		Name:      e.name,
		Path:      e.path,
		Status:    e.status,
		Instance:  e.instance,
		StartedAt: e.startedAt,
		StoppedAt: e.stoppedAt,
	}
	if e.handle != nil {
		s.PID = e.handle.PID()
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

func (e *entry) snapshot() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// clearLocked drops the handle and marks the entry stopped.
func (e *entry) clearLocked(cause error) {
	e.handle = nil
	e.status = StatusStopped
	e.stoppedAt = time.Now()
	e.lastErr = cause
}
