package process

import (
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/loykin/procdash/internal/logger"
)

// ErrEmptyPath is returned by BuildCommand when no executable is configured.
var ErrEmptyPath = errors.New("executable path not set")

// Spec describes one child process launch.
type Spec struct {
	Name    string            `json:"name"`     // display name, used for log file names
	Path    string            `json:"path"`     // executable path, run directly without a shell
	WorkDir string            `json:"work_dir"` // optional working dir
	Env     []string          `json:"env"`      // full environment; nil inherits the parent's
	Log     logger.FileConfig `json:"log"`      // stdout/stderr capture
	LogName string            `json:"-"`        // base name for capture files; defaults to Name
	Logger  *slog.Logger      `json:"-"`        // receives output lines when Log has no Dir
}

// BuildCommand constructs an *exec.Cmd for the spec. The path is an opaque
// executable reference: no arguments are split out of it and no shell is involved.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	p := strings.TrimSpace(s.Path)
	if p == "" {
		return nil, ErrEmptyPath
	}
	// #nosec G204 -- running the configured executable is the purpose of this package
	cmd := exec.Command(p)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	return cmd, nil
}

func (s *Spec) logName() string {
	if s.LogName != "" {
		return s.LogName
	}
	return s.Name
}
