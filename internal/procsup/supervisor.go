// Package procsup supervises the external helper processes the dock daemon
// relies on (the DFU flasher, the LittleFS mount helper, and umount).
//
// Every child is reaped by a dedicated goroutine that always calls Wait, so
// helpers whose completion is not awaited on the fast path never linger as
// zombies. At most one helper is tracked as "active" at a time; termination
// signals received by the daemon are forwarded to it so it can release its
// mount or device resources before the daemon exits.
package procsup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"dockd/internal/logging"
)

// ErrTimeout reports that a bounded wait elapsed before the child exited.
var ErrTimeout = errors.New("helper process wait timed out")

// Handle identifies one spawned helper process.
type Handle struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Supervisor spawns and tracks helper processes.
type Supervisor struct {
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// New constructs a supervisor.
func New(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logging.NewComponentLogger(logger, "procsup")}
}

// Spawn starts the given external program and registers it as the active
// helper. The returned handle stays valid after the process exits.
func (s *Supervisor) Spawn(name string, args ...string) (*Handle, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("helper command required")
	}

	cmd := exec.Command(name, args...) //nolint:gosec
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	handle := &Handle{
		name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.active = handle
	s.mu.Unlock()

	s.logger.Debug("helper started",
		logging.String("command", name),
		logging.Int("pid", cmd.Process.Pid),
	)

	// Asynchronous reap path: Wait is always called exactly once here,
	// regardless of whether any caller blocks on the handle.
	go func() {
		err := cmd.Wait()
		handle.mu.Lock()
		handle.err = err
		handle.mu.Unlock()
		close(handle.done)

		s.mu.Lock()
		if s.active == handle {
			s.active = nil
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Debug("helper exited with error",
				logging.String("command", name),
				logging.Error(err),
			)
		}
	}()

	return handle, nil
}

// Run spawns the program and blocks until it exits or ctx is cancelled.
// A non-zero exit status is returned as an error.
func (s *Supervisor) Run(ctx context.Context, name string, args ...string) error {
	handle, err := s.Spawn(name, args...)
	if err != nil {
		return err
	}
	return handle.Wait(ctx)
}

// SignalActive forwards sig to the currently active helper, if any.
func (s *Supervisor) SignalActive(sig os.Signal) {
	s.mu.Lock()
	handle := s.active
	s.mu.Unlock()

	if handle == nil {
		return
	}
	if err := handle.Signal(sig); err != nil {
		s.logger.Debug("signal forward failed",
			logging.String("command", handle.name),
			logging.Error(err),
		)
		return
	}
	s.logger.Info("forwarded signal to active helper",
		logging.String("command", handle.name),
		logging.String("signal", sig.String()),
	)
}

// Pid returns the process id of the child.
func (h *Handle) Pid() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return -1
	}
	return h.cmd.Process.Pid
}

// Exited reports whether the child has been reaped.
func (h *Handle) Exited() bool {
	if h == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the child exits or ctx is cancelled. A non-zero exit
// status or abnormal termination is returned as an error.
func (h *Handle) Wait(ctx context.Context) error {
	if h == nil {
		return errors.New("nil process handle")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.exitError()
	}
}

// WaitTimeout blocks until the child exits or the duration elapses, in which
// case ErrTimeout is returned and the child keeps running.
func (h *Handle) WaitTimeout(d time.Duration) error {
	if h == nil {
		return errors.New("nil process handle")
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return fmt.Errorf("%w after %s: %s", ErrTimeout, d, h.name)
	case <-h.done:
		return h.exitError()
	}
}

// Signal forwards sig to the child. Signalling an already-reaped child is
// not an error.
func (h *Handle) Signal(sig os.Signal) error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return errors.New("no process to signal")
	}
	if h.Exited() {
		return nil
	}
	return h.cmd.Process.Signal(sig)
}

func (h *Handle) exitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return fmt.Errorf("%s: %w", h.name, h.err)
	}
	return nil
}
