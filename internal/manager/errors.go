package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEntry is returned for ids that were never added or were removed.
	// Callers holding stale ids may treat it as a no-op.
	ErrUnknownEntry = errors.New("unknown entry")
	// ErrClosed is returned by Start after ShutdownAll.
	ErrClosed = errors.New("manager is shut down")

	ErrConfiguration = errors.New("configuration error")
	ErrLaunch        = errors.New("launch error")
	ErrTermination   = errors.New("termination error")
)

// Kind classifies supervisor failures.
type Kind int

const (
	KindConfiguration Kind = iota + 1 // missing/invalid path, no process side effect
	KindLaunch                        // OS refused to spawn, entry stays stopped
	KindTermination                   // OS failed to kill, entry forced to stopped
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindLaunch:
		return "launch"
	case KindTermination:
		return "termination"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindLaunch:
		return ErrLaunch
	case KindTermination:
		return ErrTermination
	default:
		return nil
	}
}

// Error is returned by Start and Stop. errors.Is matches it against
// ErrConfiguration, ErrLaunch, or ErrTermination according to Kind.
type Error struct {
	Kind   Kind
	ID     ID
	Name   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error for %q (id %s): %s", e.Kind, e.Name, e.ID, e.Reason)
	if e.Err != nil && e.Err.Error() != e.Reason {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, id ID, name, reason string, cause error) *Error {
	return &Error{Kind: kind, ID: id, Name: name, Reason: reason, Err: cause}
}
