package manager

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/procdash/internal/env"
	"github.com/loykin/procdash/internal/logger"
)

// DefaultStopTimeout bounds how long Stop waits for the OS to confirm an exit.
const DefaultStopTimeout = 5 * time.Second

// Manager is the registry of managed entries and the supervisor of their processes.
//
// Lock order: an entry lock may be held while briefly taking Manager.mu, never
// the reverse. Entry locks are independent of each other.
type Manager struct {
	mu     sync.RWMutex
	order  []*entry
	byID   map[ID]*entry
	nextID ID
	closed bool

	launcher    Launcher
	log         *slog.Logger
	stopTimeout time.Duration
	output      logger.FileConfig
	envMu       sync.Mutex // Merge caches the OS environment on first use
	envM        *env.Env

	hub       *hub
	instances atomic.Uint64
	running   atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger receiving one line per lifecycle event.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithLauncher replaces the OS process launcher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) {
		if l != nil {
			m.launcher = l
		}
	}
}

// WithStopTimeout bounds the wait for exit confirmation in Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithOutput captures child stdout/stderr into rotating files.
func WithOutput(cfg logger.FileConfig) Option {
	return func(m *Manager) { m.output = cfg }
}

// WithEnv sets the environment merged into every child. Without it children
// inherit the supervisor's environment unchanged.
func WithEnv(e *env.Env) Option {
	return func(m *Manager) { m.envM = e }
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		byID:        make(map[ID]*entry),
		launcher:    ExecLauncher{},
		log:         slog.Default(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	m.hub = newHub(m.log)
	return m
}

// Subscribe returns a channel of status-changed events and a cancel func.
// The channel is buffered with n slots (DefaultEventBuffer when n <= 0); when a
// subscriber falls behind, events are dropped for it and a warning is logged.
// The channel is closed by cancel or by ShutdownAll.
func (m *Manager) Subscribe(n int) (<-chan Event, func()) {
	return m.hub.subscribe(n)
}

// Running returns the number of entries currently running.
func (m *Manager) Running() int { return int(m.running.Load()) }

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) lookup(id ID) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

func (m *Manager) entries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*entry(nil), m.order...)
}

func (m *Manager) mergedEnv() []string {
	if m.envM == nil {
		return nil
	}
	m.envMu.Lock()
	defer m.envMu.Unlock()
	return m.envM.Merge(nil)
}
