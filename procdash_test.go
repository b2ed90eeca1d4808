package procdash

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loykin/procdash/internal/process"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHandle struct {
	pid  int
	once sync.Once
	done chan struct{}
}

func (h *memHandle) PID() int              { return h.pid }
func (h *memHandle) Done() <-chan struct{} { return h.done }
func (h *memHandle) ExitErr() error        { return nil }

func (h *memHandle) Kill() error {
	h.once.Do(func() { close(h.done) })
	return nil
}

type memLauncher struct {
	mu    sync.Mutex
	specs []process.Spec
}

func (l *memLauncher) Launch(spec process.Spec) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	return &memHandle{pid: 500 + len(l.specs), done: make(chan struct{})}, nil
}

func newManager(t *testing.T) (*Manager, *memLauncher) {
	t.Helper()
	l := &memLauncher{}
	m := New(WithLauncher(l), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { _ = m.ShutdownAll() })
	return m, l
}

func TestResolve(t *testing.T) {
	m, _ := newManager(t)
	api := m.Add("API Server")
	named := m.Add("7")

	id, err := m.Resolve(api.String())
	require.NoError(t, err)
	assert.Equal(t, api, id)

	id, err = m.Resolve("  api server ")
	require.NoError(t, err)
	assert.Equal(t, api, id)

	// "7" is not a live id, so it falls back to the name.
	id, err = m.Resolve("7")
	require.NoError(t, err)
	assert.Equal(t, named, id)

	_, err = m.Resolve("missing")
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestApplyConfigStartsAutostartEntries(t *testing.T) {
	m, l := newManager(t)

	ids, err := m.ApplyConfig([]EntryConfig{
		{Name: "API", Path: "/bin/api", Autostart: true},
		{Name: "Web", Path: "/bin/web"},
		{Name: "Database", Autostart: true},
	})
	require.Len(t, ids, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ids[2], cfgErr.ID)

	api, _ := m.Get(ids[0])
	web, _ := m.Get(ids[1])
	db, _ := m.Get(ids[2])
	assert.Equal(t, StatusRunning, api.Status)
	assert.Equal(t, StatusStopped, web.Status)
	assert.Equal(t, "/bin/web", web.Path)
	assert.Equal(t, StatusStopped, db.Status)
	assert.Equal(t, 1, m.Running())

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.specs, 1)
	assert.Equal(t, "/bin/api", l.specs[0].Path)
}

func TestNewFromConfig(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	c.StopTimeout = time.Second
	c.UseOSEnv = false
	c.Env = []string{"GREETING=hi"}

	l := &memLauncher{}
	m, err := NewFromConfig(c, WithLauncher(l), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.ShutdownAll() })

	ids, err := m.ApplyConfig(c.Entries)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, "API Server", m.List()[0].Name)

	require.NoError(t, m.SetPath(ids[0], "/bin/api"))
	require.NoError(t, m.Start(ids[0]))
	l.mu.Lock()
	spec := l.specs[0]
	l.mu.Unlock()
	assert.Contains(t, spec.Env, "GREETING=hi")

	require.NoError(t, m.ShutdownAll())
	assert.ErrorIs(t, m.Start(ids[0]), ErrClosed)
}

func TestMetricsTextfile(t *testing.T) {
	require.NoError(t, RegisterMetricsDefault())
	m, _ := newManager(t)
	id := m.Add("API")
	require.NoError(t, m.SetPath(id, "/bin/api"))
	require.NoError(t, m.Start(id))

	path := filepath.Join(t.TempDir(), "metrics", "procdash.prom")
	require.NoError(t, WriteMetricsTextfile(path, prometheus.DefaultGatherer))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `procdash_entry_starts_total{name="API"}`)
	assert.Contains(t, string(b), "procdash_running_entries")
}
