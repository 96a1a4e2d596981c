// Package pipeline runs the end-to-end dock cycle for one confirmed plug
// event: firmware update, block device discovery, mount, extraction, decode
// and publish, then archival.
//
// Stage failures after the session row exists mark it aborted and tear the
// mount down; the session directory is kept for inspection. A failure in one
// cycle never prevents the next plug event from starting a fresh cycle.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"dockd/internal/config"
	"dockd/internal/decode"
	"dockd/internal/extract"
	"dockd/internal/firmware"
	"dockd/internal/logging"
	"dockd/internal/notifications"
	"dockd/internal/pathutil"
	"dockd/internal/services"
	"dockd/internal/session"
	"dockd/internal/usbid"
)

// markerPollInterval is how often the mount marker file is re-examined while
// waiting for the mounted filesystem to become live.
const markerPollInterval = 200 * time.Millisecond

// Flasher pushes one firmware image into the device.
type Flasher interface {
	Flash(ctx context.Context, image string) error
}

// BlockWaiter resolves the device node backing a USB identity.
type BlockWaiter interface {
	WaitFor(ctx context.Context, id usbid.Identity, timeout, interval time.Duration) (string, error)
}

// Mounter manages the FUSE helper lifecycle for the mount point.
type Mounter interface {
	MountPoint() string
	Prepare(ctx context.Context) error
	Mount(device string) error
	Unmount(ctx context.Context) error
	WaitClean(ctx context.Context) error
}

// SessionDecoder decodes a session directory and publishes its records.
type SessionDecoder interface {
	ProcessSession(ctx context.Context, sessionDir string) (decode.Stats, error)
}

// Store is the slice of the session store the pipeline writes through.
type Store interface {
	Create(ctx context.Context, key, directory string) (*session.Session, error)
	Update(ctx context.Context, sess *session.Session) error
}

// Pipeline owns the stage sequence for dock cycles.
type Pipeline struct {
	cfg      *config.Config
	store    Store
	flasher  Flasher
	finder   BlockWaiter
	mounter  Mounter
	decoder  SessionDecoder
	notifier notifications.Service
	logger   *slog.Logger

	identity usbid.Identity
	now      func() time.Time
}

// New wires a Pipeline from its collaborators.
func New(
	cfg *config.Config,
	store Store,
	flasher Flasher,
	finder BlockWaiter,
	mounter Mounter,
	decoder SessionDecoder,
	notifier notifications.Service,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		flasher:  flasher,
		finder:   finder,
		mounter:  mounter,
		decoder:  decoder,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		identity: usbid.NewIdentity(cfg.Device.VendorID, cfg.Device.ProductID),
		now:      time.Now,
	}
}

// Run executes one full dock cycle. It is invoked once per confirmed plug
// event; concurrent invocation is prevented by the caller.
func (p *Pipeline) Run(ctx context.Context) error {
	started := p.now()

	if err := p.stageFirmware(ctx); err != nil {
		p.notifyError(ctx, err, "firmware")
		return err
	}

	device, err := p.stageBlockDevice(ctx)
	if err != nil {
		p.notifyError(ctx, err, "block device")
		return err
	}

	sess, err := p.createSession(ctx)
	if err != nil {
		p.notifyError(ctx, err, "session")
		return err
	}
	log := p.logger.With(logging.String(logging.FieldSessionKey, sess.Key))

	if err := p.stageMount(ctx, device, sess, log); err != nil {
		p.abort(ctx, sess, err, log)
		return err
	}

	if err := p.stageExtract(ctx, sess, log); err != nil {
		p.abort(ctx, sess, err, log)
		return err
	}

	stats, err := p.stageDecode(ctx, sess, log)
	if err != nil {
		p.abort(ctx, sess, err, log)
		return err
	}

	if err := p.stageArchive(ctx, sess, log); err != nil {
		// Everything of value already happened: the data is extracted,
		// decoded, and published. The move is retried by nobody; an operator
		// archives by hand.
		log.Warn("session archive failed",
			logging.Error(err),
			logging.String(logging.FieldStage, "archive"),
			logging.String(logging.FieldImpact, "session left in place under the extract directory"),
		)
	}

	log.Info("dock cycle complete",
		logging.Int("files", stats.Files),
		logging.Int("records_published", stats.Published),
		logging.Duration("elapsed", p.now().Sub(started)),
	)
	if nerr := p.notifier.NotifySessionCompleted(ctx, sess.Key, stats.Files, stats.Published); nerr != nil {
		log.Debug("completion notification failed", logging.Error(nerr))
	}
	return nil
}

// stageFirmware flashes at most one pending image. No pending image is the
// common case and not an event worth logging above debug.
func (p *Pipeline) stageFirmware(ctx context.Context) error {
	image, err := firmware.NextImage(p.cfg.Firmware.Dir)
	if err != nil {
		p.logger.Warn("firmware scan failed; skipping update",
			logging.Error(err),
			logging.String(logging.FieldStage, "firmware"),
			logging.String(logging.FieldImpact, "pending firmware not applied this cycle"),
		)
		return nil
	}
	if image == "" {
		p.logger.Debug("no pending firmware image", logging.String(logging.FieldStage, "firmware"))
		return nil
	}

	if err := p.flasher.Flash(ctx, image); err != nil {
		// The device may be half-way through DFU; nothing downstream can be
		// trusted, so the whole cycle stops here.
		return err
	}
	if nerr := p.notifier.NotifyFirmwareFlashed(ctx, filepath.Base(image)); nerr != nil {
		p.logger.Debug("firmware notification failed", logging.Error(nerr))
	}
	return nil
}

// stageBlockDevice waits for the wearable's mass-storage node to enumerate.
// A DFU download resets the device, so the wait covers re-enumeration too.
func (p *Pipeline) stageBlockDevice(ctx context.Context) (string, error) {
	timeout := time.Duration(p.cfg.Device.BlockWaitTimeout) * time.Second
	interval := time.Duration(p.cfg.Device.BlockPollIntervalMS) * time.Millisecond

	device, err := p.finder.WaitFor(ctx, p.identity, timeout, interval)
	if err != nil {
		return "", services.Wrap(services.ErrTimeout, "block device", "wait for enumeration", p.identity.VendorID+":"+p.identity.ProductID, err)
	}

	p.logger.Info("block device enumerated",
		logging.String(logging.FieldDevice, device),
		logging.String(logging.FieldStage, "block device"),
	)
	if nerr := p.notifier.NotifyDeviceDetected(ctx, device); nerr != nil {
		p.logger.Debug("detection notification failed", logging.Error(nerr))
	}
	return device, nil
}

func (p *Pipeline) createSession(ctx context.Context) (*session.Session, error) {
	key := session.NewKey(p.now())
	dir, err := pathutil.Join(p.cfg.Paths.ExtractDir, key)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "derive directory", key, err)
	}

	sess, err := p.store.Create(ctx, key, dir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "session", "create", key, err)
	}
	p.logger.Info("session created",
		logging.String(logging.FieldSessionKey, key),
		logging.String("directory", dir),
	)
	return sess, nil
}

func (p *Pipeline) stageMount(ctx context.Context, device string, sess *session.Session, log *slog.Logger) error {
	if err := p.mounter.Prepare(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "mount", "prepare mount point", "", err)
	}
	if err := p.mounter.Mount(device); err != nil {
		return services.Wrap(services.ErrExternalTool, "mount", "start helper", device, err)
	}

	markerTimeout := time.Duration(p.cfg.Mount.MarkerTimeout) * time.Second
	_, err := extract.WaitForStableFile(ctx, p.mounter.MountPoint(), p.cfg.Decode.LogFileName, markerTimeout, markerPollInterval)
	if err != nil {
		return services.Wrap(services.ErrTimeout, "mount", "wait for marker", p.cfg.Decode.LogFileName, err)
	}

	sess.Status = session.StatusMounted
	if err := p.store.Update(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "mount", "persist status", "", err)
	}
	log.Info("filesystem mounted", logging.String(logging.FieldDevice, device))
	return nil
}

// stageExtract copies the mounted tree into the session directory, wipes the
// onboard storage, and tears the mount down. Wipe and unmount problems are
// logged but not fatal once the copy succeeded: the data is already safe and
// the next cycle's Prepare recovers a stale mount.
func (p *Pipeline) stageExtract(ctx context.Context, sess *session.Session, log *slog.Logger) error {
	mountPoint := p.mounter.MountPoint()

	if err := extract.CopyTree(mountPoint, sess.Directory); err != nil {
		return services.Wrap(services.ErrTransient, "extract", "copy tree", mountPoint, err)
	}

	if err := extract.WipeTree(mountPoint); err != nil {
		log.Warn("onboard storage wipe failed",
			logging.Error(err),
			logging.String(logging.FieldStage, "extract"),
			logging.String(logging.FieldImpact, "next session may re-extract the same data"),
		)
	}

	if err := p.teardownMount(ctx); err != nil {
		log.Warn("mount teardown incomplete",
			logging.Error(err),
			logging.String(logging.FieldStage, "extract"),
			logging.String(logging.FieldImpact, "stale mount will be recovered on the next cycle"),
		)
	}

	sess.Status = session.StatusExtracted
	if err := p.store.Update(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "extract", "persist status", "", err)
	}
	log.Info("extraction complete", logging.String("directory", sess.Directory))
	return nil
}

func (p *Pipeline) stageDecode(ctx context.Context, sess *session.Session, log *slog.Logger) (decode.Stats, error) {
	stats, err := p.decoder.ProcessSession(ctx, sess.Directory)
	if err != nil {
		return stats, services.Wrap(services.ErrTransient, "decode", "process session", sess.Key, err)
	}

	sess.Status = session.StatusDecoded
	sess.FilesProcessed = stats.Files
	sess.RecordsPublished = stats.Published
	if err := p.store.Update(ctx, sess); err != nil {
		return stats, services.Wrap(services.ErrTransient, "decode", "persist status", "", err)
	}
	if stats.Truncated > 0 {
		log.Warn("decode finished with truncated records",
			logging.Int("truncated", stats.Truncated),
			logging.String(logging.FieldStage, "decode"),
		)
	}
	return stats, nil
}

func (p *Pipeline) stageArchive(ctx context.Context, sess *session.Session, log *slog.Logger) error {
	if err := session.Archive(sess, p.cfg.ArchiveDir()); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "move session", sess.Key, err)
	}
	if err := p.store.Update(ctx, sess); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "persist status", "", err)
	}
	log.Info("session archived", logging.String("directory", sess.Directory))
	return nil
}

// abort records the failure on the session and makes a best-effort teardown
// so the mount point is free for the next cycle.
func (p *Pipeline) abort(ctx context.Context, sess *session.Session, cause error, log *slog.Logger) {
	sess.SetAborted(cause.Error())
	if err := p.store.Update(ctx, sess); err != nil {
		log.Error("failed to record aborted session", logging.Error(err))
	}

	if err := p.teardownMount(ctx); err != nil {
		log.Debug("teardown after abort", logging.Error(err))
	}

	log.Error("dock cycle aborted",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "session_aborted"),
		logging.String(logging.FieldImpact, "session directory kept for inspection"),
	)
	if nerr := p.notifier.NotifySessionAborted(ctx, sess.Key, cause.Error()); nerr != nil {
		log.Debug("abort notification failed", logging.Error(nerr))
	}
}

// teardownMount unmounts if anything is still active and waits for the
// helper to go away. Safe to call when nothing is mounted.
func (p *Pipeline) teardownMount(ctx context.Context) error {
	if err := p.mounter.Unmount(ctx); err != nil {
		waitErr := p.mounter.WaitClean(ctx)
		if waitErr == nil {
			// The helper exited on its own; the unmount error was a race.
			return nil
		}
		return errors.Join(err, waitErr)
	}
	return p.mounter.WaitClean(ctx)
}

func (p *Pipeline) notifyError(ctx context.Context, err error, stage string) {
	if nerr := p.notifier.NotifyError(ctx, err, stage); nerr != nil {
		p.logger.Debug("error notification failed", logging.Error(nerr))
	}
}
