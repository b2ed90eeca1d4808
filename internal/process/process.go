package process

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/procdash/internal/logger"
)

// ErrNotStarted is returned by Kill on a Process that never started.
var ErrNotStarted = errors.New("process not started")

// outputDrainDelay bounds how long Wait keeps copying output after the child
// has exited. Descendants that inherited stdout/stderr would otherwise hold
// the exit notification back until they exit too.
const outputDrainDelay = 250 * time.Millisecond

// Process owns one started child. Exactly one goroutine reaps it (cmd.Wait);
// Done is closed once the OS has confirmed the exit.
type Process struct {
	spec Spec
	cmd  *exec.Cmd
	pid  int

	mu        sync.Mutex
	exitErr   error
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{}
}

// Start spawns the process described by spec and begins reaping it in the background.
func Start(spec Spec) (*Process, error) {
	cmd, err := spec.BuildCommand()
	if err != nil {
		return nil, err
	}
	p := &Process{spec: spec, cmd: cmd, waitDone: make(chan struct{})}
	if err := p.configureOutput(); err != nil {
		return nil, fmt.Errorf("prepare output capture: %w", err)
	}
	configureSysProcAttr(cmd)
	cmd.WaitDelay = outputDrainDelay
	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return nil, err
	}
	p.pid = cmd.Process.Pid
	go p.wait()
	return p, nil
}

// configureOutput wires stdout/stderr to rotating files when a capture
// directory is set, else to spec.Logger line by line at debug level. With
// neither, os/exec connects them to the null device.
func (p *Process) configureOutput() error {
	outW, errW, err := p.spec.Log.ProcessWriters(p.spec.logName())
	if err != nil {
		return err
	}
	if outW == nil && p.spec.Logger != nil {
		outW = logger.NewLineWriter(p.spec.Logger, slog.LevelDebug, "stdout")
		errW = logger.NewLineWriter(p.spec.Logger, slog.LevelDebug, "stderr")
	}
	p.outCloser, p.errCloser = outW, errW
	if outW != nil {
		p.cmd.Stdout = outW
	}
	if errW != nil {
		p.cmd.Stderr = errW
	}
	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		// The child exited cleanly; only a descendant still held its output.
		err = nil
	}
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	p.closeWriters()
	close(p.waitDone)
}

// PID returns the OS process id.
func (p *Process) PID() int { return p.pid }

// Done is closed after the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from cmd.Wait; nil while running or after a clean exit.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Kill forcefully terminates the process (and its process group where supported).
// It does not wait; callers wait on Done.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	if p.Exited() {
		return nil
	}
	return killProcess(p.cmd)
}

func (p *Process) closeWriters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
}
