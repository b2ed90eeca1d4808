package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/procdash/internal/logger"
	"github.com/loykin/procdash/internal/metrics"
	"github.com/loykin/procdash/internal/process"
)

// killGrace is how long a failed kill waits for an exit that may already be in flight.
const killGrace = 100 * time.Millisecond

var errStopTimeout = errors.New("timeout")

// Start spawns the process for id. If the entry is already running this is a
// no-op; a second process is never spawned for the same entry.
func (m *Manager) Start(id ID) error {
	e := m.lookup(id)
	if e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	if e == nil || e.removed {
		m.log.Warn("Cannot start unknown entry", slog.String("id", id.String()))
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	log := m.entryLog(e)
	if e.handle != nil {
		log.Info(e.name+" is already running", slog.Int("pid", e.handle.PID()))
		return nil
	}
	if m.isClosed() {
		log.Warn("Cannot start " + e.name + ": supervisor is shut down")
		return ErrClosed
	}
	if strings.TrimSpace(e.path) == "" {
		err := newError(KindConfiguration, e.id, e.name, "path not set", nil)
		e.lastErr = err
		log.Error("✗ Cannot start " + e.name + ": path not set")
		m.publishLocked(e, ReasonConfigurationError, 0, err)
		metrics.IncFailure(e.name, KindConfiguration.String())
		return err
	}

	log.Info("Starting " + e.name + "…")
	began := time.Now()
	h, err := m.launcher.Launch(m.specLocked(e))
	metrics.ObserveLaunchDuration(e.name, time.Since(began).Seconds())
	if err != nil {
		lerr := newError(KindLaunch, e.id, e.name, err.Error(), err)
		e.lastErr = lerr
		log.Error("✗ Failed to start "+e.name+": "+err.Error(), slog.Any("error", err))
		m.publishLocked(e, ReasonLaunchError, 0, lerr)
		metrics.IncFailure(e.name, KindLaunch.String())
		return lerr
	}

	e.handle = h
	e.instance = m.instances.Add(1)
	e.status = StatusRunning
	e.startedAt = time.Now()
	e.lastErr = nil
	metrics.SetRunningEntries(int(m.running.Add(1)))
	go m.watch(e, h)

	log.Info("✓ "+e.name+" started", slog.Int("pid", h.PID()))
	m.publishLocked(e, ReasonUserStart, h.PID(), nil)
	metrics.IncStart(e.name)
	return nil
}

// Stop kills the process for id and returns once the OS has confirmed the
// exit. Stopping a stopped entry is a no-op. On failure the entry is still
// forced to stopped and a termination *Error is returned.
func (m *Manager) Stop(id ID) error {
	e := m.lookup(id)
	if e == nil {
		m.log.Warn("Cannot stop unknown entry", slog.String("id", id.String()))
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle == nil {
		m.entryLog(e).Info(e.name + " is not running")
		return nil
	}
	return m.stopLocked(e)
}

// ShutdownAll stops every running entry concurrently, attempting all of them
// regardless of individual failures, and returns the joined failures. It then
// rejects further starts and closes all event subscriptions. Later calls are no-ops.
func (m *Manager) ShutdownAll() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	es := append([]*entry(nil), m.order...)
	m.mu.Unlock()

	m.log.Info("Shutting down", slog.Int("entries", len(es)))
	errs := make([]error, len(es))
	var wg sync.WaitGroup
	for i, e := range es {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.handle != nil {
				errs[i] = m.stopLocked(e)
			}
		}(i, e)
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		m.log.Warn("Shutdown finished with failures", slog.Any("error", err))
	} else {
		m.log.Info("Shutdown complete")
	}
	m.hub.close()
	return err
}

// stopLocked terminates the entry's current process. e.mu must be held and
// e.handle must be set.
func (m *Manager) stopLocked(e *entry) error {
	h := e.handle
	pid := h.PID()
	log := m.entryLog(e).With(slog.Int("pid", pid))
	log.Info("Stopping " + e.name + "…")

	termErr := m.terminate(h)
	metrics.SetRunningEntries(int(m.running.Add(-1)))
	if termErr != nil {
		err := newError(KindTermination, e.id, e.name, termErr.Error(), termErr)
		e.clearLocked(err)
		log.Error("✗ Failed to stop "+e.name+": "+termErr.Error(), slog.Any("error", termErr))
		m.publishLocked(e, ReasonTerminationError, pid, err)
		metrics.IncFailure(e.name, KindTermination.String())
		return err
	}
	e.clearLocked(nil)
	log.Info("✓ " + e.name + " stopped")
	m.publishLocked(e, ReasonUserStop, pid, nil)
	metrics.IncStop(e.name)
	return nil
}

// terminate kills h and waits, bounded by stopTimeout, for the OS to confirm the exit.
func (m *Manager) terminate(h Handle) error {
	select {
	case <-h.Done():
		return nil
	default:
	}
	if err := h.Kill(); err != nil {
		// The process may have exited between the check above and the kill.
		t := time.NewTimer(killGrace)
		defer t.Stop()
		select {
		case <-h.Done():
			return nil
		case <-t.C:
			return err
		}
	}
	t := time.NewTimer(m.stopTimeout)
	defer t.Stop()
	select {
	case <-h.Done():
		return nil
	case <-t.C:
		return errStopTimeout
	}
}

// watch waits for h to exit on its own. The stored handle is the identity
// token: if Stop (or Stop followed by Start) replaced it, the exit is stale
// and ignored.
func (m *Manager) watch(e *entry, h Handle) {
	<-h.Done()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handle != h {
		return
	}
	pid := h.PID()
	exitErr := h.ExitErr()
	e.clearLocked(exitErr)
	metrics.SetRunningEntries(int(m.running.Add(-1)))

	msg := "⚠ " + e.name + " exited unexpectedly"
	if exitErr != nil {
		msg += ": " + exitErr.Error()
	}
	m.entryLog(e).Warn(msg, slog.Int("pid", pid))
	m.publishLocked(e, ReasonUnexpectedExit, pid, exitErr)
	metrics.IncUnexpectedExit(e.name)
}

func (m *Manager) specLocked(e *entry) process.Spec {
	return process.Spec{
		Name:    e.name,
		Path:    strings.TrimSpace(e.path),
		Env:     m.mergedEnv(),
		Log:     m.output,
		LogName: fmt.Sprintf("%s-%d", logger.FileName(e.name), e.id),
		Logger:  m.entryLog(e),
	}
}

func (m *Manager) entryLog(e *entry) *slog.Logger {
	return m.log.With(slog.String("id", e.id.String()), slog.String("entry", e.name))
}

// publishLocked emits an event while e.mu is held, so per-entry events are
// delivered in transition order.
func (m *Manager) publishLocked(e *entry, reason Reason, pid int, err error) {
	m.hub.publish(Event{
		ID:       e.id,
		Name:     e.name,
		Status:   e.status,
		Reason:   reason,
		Err:      err,
		PID:      pid,
		Instance: e.instance,
		At:       time.Now(),
	})
}
