package manager

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/procdash/internal/process"
)

var errKilled = errors.New("signal: killed")

// fakeHandle is a process that exists only in memory.
type fakeHandle struct {
	pid     int
	killErr error
	hang    bool // Kill succeeds but the exit is never confirmed

	kills   atomic.Int32
	once    sync.Once
	done    chan struct{}
	mu      sync.Mutex
	exitErr error
}

func (h *fakeHandle) PID() int              { return h.pid }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Kill() error {
	h.kills.Add(1)
	if h.killErr != nil {
		return h.killErr
	}
	if !h.hang {
		h.exit(errKilled)
	}
	return nil
}

func (h *fakeHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// exit simulates the process ending on its own.
func (h *fakeHandle) exit(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *fakeHandle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

type fakeLauncher struct {
	mu      sync.Mutex
	handles []*fakeHandle
	specs   []process.Spec
	err     error
	// killErr/hang configure handles per entry name.
	killErr map[string]error
	hang    map[string]bool
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{killErr: map[string]error{}, hang: map[string]bool{}}
}

func (l *fakeLauncher) Launch(spec process.Spec) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{
		pid:     1000 + len(l.handles),
		killErr: l.killErr[spec.Name],
		hang:    l.hang[spec.Name],
		done:    make(chan struct{}),
	}
	l.handles = append(l.handles, h)
	l.specs = append(l.specs, spec)
	return h, nil
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

func (l *fakeLauncher) handle(i int) *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[i]
}

func (l *fakeLauncher) last() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[len(l.handles)-1]
}

func (l *fakeLauncher) alive() []*fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*fakeHandle
	for _, h := range l.handles {
		if h.alive() {
			out = append(out, h)
		}
	}
	return out
}

// syncBuffer lets tests read log output while watcher goroutines write to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Count(s string) int { return strings.Count(b.String(), s) }

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeLauncher, *syncBuffer) {
	t.Helper()
	fl := newFakeLauncher()
	buf := &syncBuffer{}
	log := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	all := append([]Option{WithLauncher(fl), WithLogger(log)}, opts...)
	m := New(all...)
	t.Cleanup(func() { _ = m.ShutdownAll() })
	return m, fl, buf
}

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return fn()
}

// drain collects whatever is buffered on ch without blocking.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func reasons(evs []Event) []Reason {
	out := make([]Reason, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Reason)
	}
	return out
}
