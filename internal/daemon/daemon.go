package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/procsup"
	"dockd/internal/session"
)

// CycleRunner executes one full dock cycle for a confirmed plug event.
type CycleRunner interface {
	Run(ctx context.Context) error
}

// Daemon ties the netlink monitor, the debounce state machine, and the dock
// pipeline into a single lifecycle with flock-based locking to prevent
// multiple instances from fighting over the hardware.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *session.Store
	runner CycleRunner
	sup    *procsup.Supervisor

	monitor *netlinkMonitor
	deb     *debouncer
	events  chan presenceEvent
	tick    time.Duration

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Armed         bool
	LockFilePath  string
	SessionDBPath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *session.Store, runner CycleRunner, sup *procsup.Supervisor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || runner == nil || sup == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, runner, supervisor, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "dockd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		runner:   runner,
		sup:      sup,
		deb:      newDebouncer(time.Duration(cfg.Workflow.QuiescenceWindowMS) * time.Millisecond),
		events:   make(chan presenceEvent, 16),
		tick:     time.Duration(cfg.Workflow.EventTickIntervalMS) * time.Millisecond,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.monitor = newNetlinkMonitor(cfg, logger, d.observe)
	return d, nil
}

// Start acquires the daemon lock, connects the netlink monitor, and launches
// the event loop. A netlink connection failure is fatal.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dockd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.monitor.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start netlink monitor: %w", err)
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(runCtx)

	d.logger.Info("dock daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("quiescence_window", d.deb.window),
	)
	return nil
}

// Stop shuts down the event loop, forwards a termination signal to any
// active child (such as the mount helper), and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.monitor.Stop()
	d.sup.SignalActive(syscall.SIGTERM)
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("dock daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		Armed:         d.deb.Armed(),
		LockFilePath:  d.lockPath,
		SessionDBPath: d.store.Path(),
	}
}

// observe is the monitor's callback; it hands the event to the loop without
// blocking the netlink reader.
func (d *Daemon) observe(evt presenceEvent) {
	select {
	case d.events <- evt:
	default:
		// A full channel means a pathological event storm; dropping one
		// observation is safe because the debouncer only needs the latest.
		d.logger.Warn("presence event dropped",
			logging.String(logging.FieldEventType, "event_overflow"),
			logging.String(logging.FieldImpact, "debounce window may extend"),
		)
	}
}

// loop is the daemon's single decision point: presence events feed the
// debouncer, the tick checks whether a window has closed, and closed windows
// run dock cycles one at a time.
func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.events:
			d.deb.Observe(evt.Present, evt.At)
		case <-ticker.C:
			if d.deb.Due(time.Now()) {
				d.runCycle(ctx)
			}
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context) {
	d.logger.Info("plug event confirmed; starting dock cycle",
		logging.String(logging.FieldEventType, "cycle_started"),
	)
	if err := d.runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The pipeline already recorded and logged the failure; the daemon
		// just notes that it stays alive for the next plug event.
		d.logger.Error("dock cycle failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cycle_failed"),
			logging.String(logging.FieldImpact, "waiting for next plug event"),
		)
	}
}
