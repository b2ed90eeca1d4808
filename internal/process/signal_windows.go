//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const PROCESS_QUERY_INFORMATION = 0x0400

// killProcess terminates the child with TerminateProcess.
func killProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// processExists checks if a process exists (for tests)
func processExists(pid int) bool {
	h, err := syscall.OpenProcess(PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(h)
	return true
}
