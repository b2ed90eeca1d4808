package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/loykin/procdash/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, ctx context.Context, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := buildRoot()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, context.Background(), "", "version")
	require.NoError(t, err)
	assert.Equal(t, "procdash dev\n", out)
}

func TestListDefaults(t *testing.T) {
	out, _, err := execute(t, context.Background(), "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "API Server")
	assert.Contains(t, out, "Web Server")
	assert.Contains(t, out, "Database")
	assert.Contains(t, out, "(not set)")
}

func TestListJSON(t *testing.T) {
	path := writeConfig(t, `
[[entries]]
name = "API"
path = "/usr/bin/api"
autostart = true
`)
	out, _, err := execute(t, context.Background(), "", "list", "--config", path, "-o", "json")
	require.NoError(t, err)
	var entries []config.EntryConfig
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "API", entries[0].Name)
	assert.True(t, entries[0].Autostart)
}

func TestTelemetryJSON(t *testing.T) {
	out, _, err := execute(t, context.Background(), "", "telemetry", "-n", "2", "--interval", "20ms", "-o", "json")
	require.NoError(t, err)
	var samples []struct {
		Processes  int     `json:"processes"`
		MemPercent float64 `json:"mem_percent"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &samples))
	require.Len(t, samples, 2)
	assert.Positive(t, samples[1].Processes)
	assert.Positive(t, samples[1].MemPercent)
}

func TestTelemetryTableShowsAverages(t *testing.T) {
	out, _, err := execute(t, context.Background(), "", "telemetry", "-n", "2", "--interval", "20ms", "--top", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "TIME"))
	assert.True(t, strings.HasPrefix(lines[3], "avg"))
}

func TestTelemetryKillRejectsBadPID(t *testing.T) {
	_, _, err := execute(t, context.Background(), "", "telemetry", "kill", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid pid "abc"`)
}

func TestBadConfigFails(t *testing.T) {
	_, _, err := execute(t, context.Background(), "", "list", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestHistoryRequiresDSN(t *testing.T) {
	_, _, err := execute(t, context.Background(), "", "history")
	assert.ErrorContains(t, err, "history.dsn")
}

func TestConsoleRecordsHistoryAndMetrics(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	prom := filepath.Join(dir, "metrics", "procdash.prom")
	path := writeConfig(t, `
[history]
dsn = "sqlite://`+db+`"
[metrics]
textfile = "`+prom+`"
[[entries]]
name = "API"
`)
	out, logs, err := execute(t, context.Background(), "start API\nls\nquit\n", "console", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "API (1) stopped: configuration_error")
	assert.Contains(t, logs, "path not set")

	b, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(b), "go_goroutines")

	out, _, err = execute(t, context.Background(), "", "history", "--config", path, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "reason: configuration_error")
	assert.Contains(t, out, "name: API")
}

func TestRunSupervisesUntilCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh/sleep on Unix-like systems")
	}
	script := filepath.Join(t.TempDir(), "svc.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))
	path := writeConfig(t, `
stop_timeout = "2s"
[[entries]]
name = "API"
path = "`+script+`"
autostart = true
[[entries]]
name = "Idle"
`)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, logs, err := execute(t, ctx, "", "run", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, logs, "Starting API…")
	assert.Contains(t, logs, "✓ API started")
	assert.Contains(t, logs, "✓ API stopped")
	assert.NotContains(t, logs, "Idle started")
	_ = out
}

func TestRunLogsChildOutputByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh/sleep on Unix-like systems")
	}
	script := filepath.Join(t.TempDir(), "svc.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho hello-from-child\nexec sleep 30\n"), 0o755))
	path := writeConfig(t, `
[[entries]]
name = "API"
path = "`+script+`"
autostart = true
`)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, logs, err := execute(t, ctx, "", "run", "--config", path, "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, logs, "msg=hello-from-child")
	assert.Contains(t, logs, "stream=stdout")
}
