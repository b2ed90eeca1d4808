package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "procdash.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}
