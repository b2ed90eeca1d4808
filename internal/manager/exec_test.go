//go:build unix

package manager

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/procdash/internal/env"
	"github.com/loykin/procdash/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "svc.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func pidGone(pid int) bool {
	err := syscall.Kill(pid, 0)
	return errors.Is(err, syscall.ESRCH)
}

func newExecManager(t *testing.T, opts ...Option) (*Manager, *syncBuffer) {
	t.Helper()
	m, _, buf := newTestManager(t, append([]Option{WithLauncher(ExecLauncher{})}, opts...)...)
	return m, buf
}

func TestExecStartStopLeavesNoProcess(t *testing.T) {
	m, buf := newExecManager(t)
	id := addWithPath(t, m, "API", writeScript(t, "exec sleep 30"))

	require.NoError(t, m.Start(id))
	got, _ := m.Get(id)
	require.True(t, got.Running())
	pid := got.PID
	require.NotZero(t, pid)

	require.NoError(t, m.Stop(id))
	assert.True(t, pidGone(pid), "process %d still exists after Stop", pid)
	assert.Equal(t, 1, buf.Count("Starting API…"))
	assert.Equal(t, 1, buf.Count("✓ API started"))
	assert.Equal(t, 1, buf.Count("✓ API stopped"))
}

func TestExecRemoveLeavesNoOrphan(t *testing.T) {
	m, _ := newExecManager(t)
	id := addWithPath(t, m, "worker", writeScript(t, "exec sleep 30"))
	require.NoError(t, m.Start(id))
	got, _ := m.Get(id)

	require.NoError(t, m.Remove(id))
	assert.True(t, pidGone(got.PID))
	assert.Equal(t, 0, m.Len())
}

func TestExecSelfExitIsUnexpected(t *testing.T) {
	m, _ := newExecManager(t)
	id := addWithPath(t, m, "job", writeScript(t, "sleep 0.1; exit 3"))
	ch, cancel := m.Subscribe(8)
	defer cancel()

	require.NoError(t, m.Start(id))

	var evs []Event
	require.True(t, waitUntil(5*time.Second, 10*time.Millisecond, func() bool {
		evs = append(evs, drain(ch)...)
		return len(evs) >= 2
	}))
	require.Equal(t, []Reason{ReasonUserStart, ReasonUnexpectedExit}, reasons(evs))
	var exitErr *exec.ExitError
	require.True(t, errors.As(evs[1].Err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())

	got, _ := m.Get(id)
	assert.Equal(t, StatusStopped, got.Status)
	assert.Equal(t, "exit status 3", got.LastError)
}

func TestExecMissingExecutableIsLaunchError(t *testing.T) {
	m, _ := newExecManager(t)
	id := addWithPath(t, m, "ghost", filepath.Join(t.TempDir(), "missing"))

	err := m.Start(id)
	require.ErrorIs(t, err, ErrLaunch)
	got, _ := m.Get(id)
	assert.Equal(t, StatusStopped, got.Status)
}

func TestExecEnvAndOutputCapture(t *testing.T) {
	dir := t.TempDir()
	e := env.New()
	e.Set("GREETING", "hello")
	m, _ := newExecManager(t,
		WithEnv(e),
		WithOutput(logger.FileConfig{Dir: dir}),
	)
	id := addWithPath(t, m, "Web Server", writeScript(t, `echo "$GREETING"; exec sleep 30`))

	require.NoError(t, m.Start(id))
	out := filepath.Join(dir, "web-server-"+id.String()+".stdout.log")
	require.True(t, waitUntil(3*time.Second, 10*time.Millisecond, func() bool {
		b, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(b), "hello")
	}), "stdout not captured in %s", out)
	require.NoError(t, m.Stop(id))
}

func TestExecOutputLoggedWithoutCaptureDir(t *testing.T) {
	m, buf := newExecManager(t)
	id := addWithPath(t, m, "API", writeScript(t, `echo "listening on 8080"; echo "warming cache" 1>&2; exec sleep 30`))

	require.NoError(t, m.Start(id))
	require.True(t, waitUntil(3*time.Second, 10*time.Millisecond, func() bool {
		s := buf.String()
		return strings.Contains(s, `msg="listening on 8080"`) && strings.Contains(s, `msg="warming cache"`)
	}), "child output not logged: %s", buf.String())
	assert.Contains(t, buf.String(), "entry=API stream=stdout")
	require.NoError(t, m.Stop(id))
}

func TestExecExitDetectedWhileDescendantHoldsOutput(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "bg.pid")
	m, _ := newExecManager(t, WithOutput(logger.FileConfig{Dir: t.TempDir()}))
	id := addWithPath(t, m, "forker", writeScript(t, "sleep 5 &\necho $! > "+pidFile+"\nexit 0"))
	ch, cancel := m.Subscribe(8)
	defer cancel()
	t.Cleanup(func() {
		if b, err := os.ReadFile(pidFile); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil {
				_ = syscall.Kill(pid, syscall.SIGKILL)
			}
		}
	})

	require.NoError(t, m.Start(id))
	var evs []Event
	require.True(t, waitUntil(2*time.Second, 10*time.Millisecond, func() bool {
		evs = append(evs, drain(ch)...)
		return len(evs) >= 2
	}), "exit not reported; events=%v", reasons(evs))
	assert.Equal(t, []Reason{ReasonUserStart, ReasonUnexpectedExit}, reasons(evs))
	assert.NoError(t, evs[1].Err)

	got, _ := m.Get(id)
	assert.Equal(t, StatusStopped, got.Status)
	assert.Equal(t, 0, m.Running())
}
