package procdash

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cfg "github.com/loykin/procdash/internal/config"
	"github.com/loykin/procdash/internal/env"
	"github.com/loykin/procdash/internal/logger"
	"github.com/loykin/procdash/internal/manager"
	"github.com/loykin/procdash/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ID = manager.ID

type Entry = manager.Entry

type Event = manager.Event

type Status = manager.Status

type Reason = manager.Reason

type Error = manager.Error

type ErrorKind = manager.Kind

type Handle = manager.Handle

type Launcher = manager.Launcher

type Option = manager.Option

type Config = cfg.Config

type EntryConfig = cfg.EntryConfig

// OutputConfig configures capture of child stdout/stderr into rotating files.
type OutputConfig = logger.FileConfig

const (
	StatusStopped = manager.StatusStopped
	StatusRunning = manager.StatusRunning

	ReasonUserStart          = manager.ReasonUserStart
	ReasonUserStop           = manager.ReasonUserStop
	ReasonUnexpectedExit     = manager.ReasonUnexpectedExit
	ReasonConfigurationError = manager.ReasonConfigurationError
	ReasonLaunchError        = manager.ReasonLaunchError
	ReasonTerminationError   = manager.ReasonTerminationError
)

var (
	ErrUnknownEntry  = manager.ErrUnknownEntry
	ErrClosed        = manager.ErrClosed
	ErrConfiguration = manager.ErrConfiguration
	ErrLaunch        = manager.ErrLaunch
	ErrTermination   = manager.ErrTermination
)

func WithLogger(l *slog.Logger) Option       { return manager.WithLogger(l) }
func WithLauncher(l Launcher) Option         { return manager.WithLauncher(l) }
func WithStopTimeout(d time.Duration) Option { return manager.WithStopTimeout(d) }
func WithOutput(c OutputConfig) Option       { return manager.WithOutput(c) }

// WithEnv sets "K=V" pairs for every child, on top of the supervisor's own
// environment when useOS is true.
func WithEnv(kvs []string, useOS bool) Option { return manager.WithEnv(env.FromList(kvs, useOS)) }

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(opts ...Option) *Manager { return &Manager{inner: manager.New(opts...)} }

// NewFromConfig builds a Manager with the stop timeout, environment and
// output capture from c. Entries are not added; see ApplyConfig.
func NewFromConfig(c *Config, opts ...Option) (*Manager, error) {
	e, err := c.Environment()
	if err != nil {
		return nil, err
	}
	base := []Option{
		manager.WithStopTimeout(c.StopTimeout),
		manager.WithEnv(e),
		manager.WithOutput(c.OutputFileConfig()),
	}
	return New(append(base, opts...)...), nil
}

func (m *Manager) Add(name string) ID                     { return m.inner.Add(name) }
func (m *Manager) Remove(id ID) error                     { return m.inner.Remove(id) }
func (m *Manager) Rename(id ID, name string) error        { return m.inner.Rename(id, name) }
func (m *Manager) SetPath(id ID, path string) error       { return m.inner.SetPath(id, path) }
func (m *Manager) List() []Entry                          { return m.inner.List() }
func (m *Manager) Get(id ID) (Entry, bool)                { return m.inner.Get(id) }
func (m *Manager) Lookup(name string) (Entry, bool)       { return m.inner.Lookup(name) }
func (m *Manager) Len() int                               { return m.inner.Len() }
func (m *Manager) Running() int                           { return m.inner.Running() }
func (m *Manager) Start(id ID) error                      { return m.inner.Start(id) }
func (m *Manager) Stop(id ID) error                       { return m.inner.Stop(id) }
func (m *Manager) ShutdownAll() error                     { return m.inner.ShutdownAll() }
func (m *Manager) Subscribe(n int) (<-chan Event, func()) { return m.inner.Subscribe(n) }

// Resolve finds an entry by decimal id or, failing that, by name ignoring case.
func (m *Manager) Resolve(ref string) (ID, error) {
	ref = strings.TrimSpace(ref)
	if id, err := manager.ParseID(ref); err == nil {
		if _, ok := m.inner.Get(id); ok {
			return id, nil
		}
	}
	if e, ok := m.inner.Lookup(ref); ok {
		return e.ID, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEntry, ref)
}

// ApplyConfig adds one entry per config entry, in order, and starts those
// marked autostart. Start failures are joined; every entry is still added.
func (m *Manager) ApplyConfig(entries []EntryConfig) ([]ID, error) {
	ids := make([]ID, 0, len(entries))
	var errs []error
	for _, ec := range entries {
		id := m.inner.Add(ec.Name)
		if ec.Path != "" {
			_ = m.inner.SetPath(id, ec.Path)
		}
		ids = append(ids, id)
		if ec.Autostart {
			if err := m.inner.Start(id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return ids, errors.Join(errs...)
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// WriteMetricsTextfile writes gathered metrics for node_exporter's textfile collector.
func WriteMetricsTextfile(path string, g prometheus.Gatherer) error {
	return metrics.WriteTextfile(path, g)
}
