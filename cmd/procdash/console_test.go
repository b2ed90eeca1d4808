package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/loykin/procdash"
	"github.com/loykin/procdash/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"start api", []string{"start", "api"}},
		{`path 1 "/opt/my app/run"`, []string{"path", "1", "/opt/my app/run"}},
		{`rename 'Web Server' "Front End"`, []string{"rename", "Web Server", "Front End"}},
		{`path 2 /opt/my\ app`, []string{"path", "2", "/opt/my app"}},
		{`add ''`, []string{"add", ""}},
		{"  ls   -o   yaml ", []string{"ls", "-o", "yaml"}},
		{`say 'it\s'`, []string{"say", `it\s`}},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := splitArgs(`rename 1 "unterminated`)
	assert.ErrorContains(t, err, "unterminated")
	_, err = splitArgs(`path 1 trailing\`)
	assert.Error(t, err)
}

func runScript(t *testing.T, mgr *procdash.Manager, script string) string {
	t.Helper()
	var out bytes.Buffer
	c := newConsole(mgr, &out, "")
	require.NoError(t, c.run(context.Background(), strings.NewReader(script)))
	return out.String()
}

func TestConsoleRegistryCommands(t *testing.T) {
	mgr := procdash.New(procdash.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = mgr.ShutdownAll() })

	out := runScript(t, mgr, strings.Join([]string{
		"# seed",
		"add API Server",
		"add",
		"rename 2 Worker",
		"path 'api server' /usr/local/bin/api",
		"ls -o yaml",
		"rm worker",
		"ls",
		"quit",
		"add never reached",
	}, "\n"))

	assert.Contains(t, out, "added API Server (1)")
	assert.Contains(t, out, "added Service 2 (2)")
	assert.Contains(t, out, "name: Worker")
	assert.Contains(t, out, "path: /usr/local/bin/api")
	assert.Contains(t, out, "status: stopped")

	require.Equal(t, 1, mgr.Len())
	e, ok := mgr.Lookup("API Server")
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/api", e.Path)
}

func TestConsoleReportsErrors(t *testing.T) {
	mgr := procdash.New(procdash.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = mgr.ShutdownAll() })

	out := runScript(t, mgr, "frobnicate\nstart nope\nadd Empty\nstart Empty\nstop\nrename 'x\n")

	assert.Contains(t, out, `error: unknown command "frobnicate"`)
	assert.Contains(t, out, `error: unknown entry: "nope"`)
	assert.Contains(t, out, "configuration error")
	assert.Contains(t, out, "Empty (1) stopped: configuration_error")
	assert.Contains(t, out, "error: name an entry or use --all")
	assert.Contains(t, out, "error: unterminated ' quote")
}

func TestConsoleStopAllWithNothingRunning(t *testing.T) {
	mgr := procdash.New(procdash.WithLogger(logger.Discard()))
	t.Cleanup(func() { _ = mgr.ShutdownAll() })
	out := runScript(t, mgr, "add a\nadd b\nstop --all\n")
	assert.NotContains(t, out, "error:")
}

func TestConsoleStopsOnContext(t *testing.T) {
	mgr := procdash.New(procdash.WithLogger(logger.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	// A reader that never returns keeps the scanner blocked.
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()
	require.NoError(t, newConsole(mgr, &out, "> ").run(ctx, r))
}
