//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// killProcess sends SIGKILL to the child's process group, falling back to the
// child alone when the group is already gone.
func killProcess(cmd *exec.Cmd) error {
	pid := cmd.Process.Pid
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	return err
}

// processExists checks if a process exists (for tests)
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
