// Package mount manages the LittleFS FUSE helper that exposes the wearable's
// external flash under the configured mount point.
package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/procsup"
)

// fuseSuperMagic is the statfs f_type of a FUSE-backed mount.
const fuseSuperMagic = 0x65735546

const cleanPollInterval = 100 * time.Millisecond

// Manager drives the mount helper for one mount point.
type Manager struct {
	mountPoint     string
	helperBinary   string
	helperArgs     []string
	umountBinary   string
	unmountTimeout time.Duration

	sup    *procsup.Supervisor
	logger *slog.Logger
	helper *procsup.Handle

	// isMounted is swappable in tests.
	isMounted func(string) (bool, error)
}

// NewManager constructs a Manager from configuration.
func NewManager(cfg *config.Config, sup *procsup.Supervisor, logger *slog.Logger) *Manager {
	return &Manager{
		mountPoint:     cfg.Paths.MountPoint,
		helperBinary:   cfg.Mount.HelperBinary,
		helperArgs:     append([]string(nil), cfg.Mount.HelperArgs...),
		umountBinary:   cfg.Mount.UmountBinary,
		unmountTimeout: time.Duration(cfg.Mount.UnmountTimeout) * time.Second,
		sup:            sup,
		logger:         logging.NewComponentLogger(logger, "mount"),
		isMounted:      fuseMounted,
	}
}

// MountPoint returns the directory the helper mounts onto.
func (m *Manager) MountPoint() string {
	return m.mountPoint
}

// Prepare ensures the mount point exists as a directory and that no stale
// mount from a previous session is active on it.
func (m *Manager) Prepare(ctx context.Context) error {
	if info, err := os.Lstat(m.mountPoint); err == nil {
		if !info.IsDir() {
			// A stale regular file or symlink shadows the mount point.
			if err := os.Remove(m.mountPoint); err != nil {
				return fmt.Errorf("remove stale mount point entry: %w", err)
			}
			if err := os.MkdirAll(m.mountPoint, 0o755); err != nil {
				return fmt.Errorf("recreate mount point: %w", err)
			}
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(m.mountPoint, 0o755); err != nil {
			return fmt.Errorf("create mount point: %w", err)
		}
	} else {
		return fmt.Errorf("inspect mount point: %w", err)
	}

	mounted, err := m.Mounted()
	if err != nil {
		return err
	}
	if mounted {
		m.logger.Warn("stale mount detected; unmounting",
			logging.String(logging.FieldEventType, "stale_mount"),
			logging.String("mount_point", m.mountPoint),
			logging.String(logging.FieldImpact, "previous session did not tear down cleanly"),
		)
		if err := m.Unmount(ctx); err != nil {
			return err
		}
		if err := m.WaitClean(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Mount spawns the helper in foreground mode against the given block device.
// The helper stays the supervisor's active child until it exits, so daemon
// termination signals reach it.
func (m *Manager) Mount(device string) error {
	args := make([]string, 0, len(m.helperArgs)+5)
	// -f keeps the helper in the foreground so the supervisor owns its pid;
	// the filesystem is mounted read-only since the wipe happens via the
	// helper's own unmount path, not through this mount.
	args = append(args, "-f", "-o", "ro")
	args = append(args, m.helperArgs...)
	args = append(args, device, m.mountPoint)

	handle, err := m.sup.Spawn(m.helperBinary, args...)
	if err != nil {
		return fmt.Errorf("spawn mount helper: %w", err)
	}
	m.helper = handle
	m.logger.Info("mount helper started",
		logging.String(logging.FieldDevice, device),
		logging.String("mount_point", m.mountPoint),
		logging.Int("pid", handle.Pid()),
	)
	return nil
}

// Mounted reports whether a FUSE filesystem is active on the mount point.
func (m *Manager) Mounted() (bool, error) {
	return m.isMounted(m.mountPoint)
}

// Unmount runs the unmount helper against the mount point.
func (m *Manager) Unmount(ctx context.Context) error {
	unmountCtx, cancel := context.WithTimeout(ctx, m.unmountTimeout)
	defer cancel()
	if err := m.sup.Run(unmountCtx, m.umountBinary, m.mountPoint); err != nil {
		return fmt.Errorf("unmount %s: %w", m.mountPoint, err)
	}
	return nil
}

// WaitClean waits, bounded, for the mount helper to exit and for the mount
// point to stop reporting as FUSE-mounted. It never blocks indefinitely: a
// helper that outlives the timeout is simply left to the reaper.
func (m *Manager) WaitClean(ctx context.Context) error {
	if m.helper != nil {
		if err := m.helper.WaitTimeout(m.unmountTimeout); err != nil && !errors.Is(err, procsup.ErrTimeout) {
			// Helper exit status after an unmount is informational; FUSE
			// helpers commonly exit non-zero when the mount is yanked.
			m.logger.Debug("mount helper exit", logging.Error(err))
		}
		m.helper = nil
	}

	deadline := time.Now().Add(m.unmountTimeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		mounted, err := m.Mounted()
		if err != nil {
			return err
		}
		if !mounted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cleanPollInterval):
		}
	}
	return fmt.Errorf("mount point %s still active after %s", m.mountPoint, m.unmountTimeout)
}

func fuseMounted(mountPoint string) (bool, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(mountPoint, &fs); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		// ENOTCONN means a FUSE mount whose helper died; it still occupies
		// the mount point and needs an unmount.
		if errors.Is(err, unix.ENOTCONN) {
			return true, nil
		}
		return false, fmt.Errorf("statfs %s: %w", mountPoint, err)
	}
	return fs.Type == fuseSuperMagic, nil
}
