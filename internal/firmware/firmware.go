// Package firmware discovers pending firmware images and pushes them into
// the wearable with dfu-util.
//
// Archival policy: an image is moved into the archive directory only after a
// confirmed successful flash. A failed image stays in the watch directory so
// an operator sees it; it will be retried on the next plug event.
package firmware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/pathutil"
	"dockd/internal/procsup"
	"dockd/internal/services"
)

// archiveNameLayout is the timestamped name a consumed image is archived under.
const archiveNameLayout = "20060102_150405"

// NextImage returns the path of one pending *.bin image in dir, or "" when
// none is waiting. The archive subdirectory is never scanned. Candidates are
// ordered by name so repeated scans are deterministic.
func NextImage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read firmware directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".bin") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return pathutil.Join(dir, names[0])
}

// Flasher performs DFU downloads through the process supervisor.
type Flasher struct {
	binary       string
	altSetting   int
	transferSize int
	archiveDir   string

	sup    *procsup.Supervisor
	logger *slog.Logger
	now    func() time.Time
}

// NewFlasher constructs a Flasher from configuration.
func NewFlasher(cfg *config.Config, sup *procsup.Supervisor, logger *slog.Logger) *Flasher {
	return &Flasher{
		binary:       cfg.Firmware.DFUBinary,
		altSetting:   cfg.Firmware.AltSetting,
		transferSize: cfg.Firmware.TransferSize,
		archiveDir:   cfg.FirmwareArchiveDir(),
		sup:          sup,
		logger:       logging.NewComponentLogger(logger, "firmware"),
		now:          time.Now,
	}
}

// Flash downloads the image into the device and, on success, archives it
// under a timestamped name so it is never attempted twice.
func (f *Flasher) Flash(ctx context.Context, image string) error {
	f.logger.Info("starting DFU download",
		logging.String("image", image),
		logging.String("command", f.binary),
	)

	args := []string{
		"-a", strconv.Itoa(f.altSetting),
		"-t", strconv.Itoa(f.transferSize),
		"-D", image,
	}
	if err := f.sup.Run(ctx, f.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "firmware", "dfu download", image, err)
	}

	if err := f.archive(image); err != nil {
		// The flash itself succeeded; a stuck archive must not re-flash the
		// image on the next cycle, so fall back to deleting it.
		f.logger.Warn("firmware archive failed; removing image instead",
			logging.Error(err),
			logging.String(logging.FieldEventType, "firmware_archive_failed"),
			logging.String("image", image),
			logging.String(logging.FieldImpact, "flashed image not retained"),
		)
		if rmErr := os.Remove(image); rmErr != nil {
			return services.Wrap(services.ErrTransient, "firmware", "consume image", image, rmErr)
		}
	}
	return nil
}

func (f *Flasher) archive(image string) error {
	if err := os.MkdirAll(f.archiveDir, 0o755); err != nil {
		return fmt.Errorf("create firmware archive: %w", err)
	}
	target, err := pathutil.Join(f.archiveDir, f.now().Format(archiveNameLayout)+".bin")
	if err != nil {
		return err
	}
	if err := os.Rename(image, target); err != nil {
		return fmt.Errorf("archive firmware image: %w", err)
	}
	f.logger.Info("firmware image archived", logging.String("archived_as", target))
	return nil
}
