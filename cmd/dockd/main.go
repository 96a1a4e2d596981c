package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dockd/internal/config"
	"dockd/internal/daemon"
	"dockd/internal/decode"
	"dockd/internal/deps"
	"dockd/internal/firmware"
	"dockd/internal/logging"
	"dockd/internal/mount"
	"dockd/internal/mqttpub"
	"dockd/internal/notifications"
	"dockd/internal/pipeline"
	"dockd/internal/procsup"
	"dockd/internal/session"
	"dockd/internal/usbid"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	for _, status := range statuses {
		if !status.Available {
			logger.Warn("external tool unavailable",
				logging.String("tool", status.Name),
				logging.String("command", status.Command),
				logging.String(logging.FieldErrorHint, status.Detail),
				logging.String(logging.FieldImpact, "dock cycles will fail until installed"),
			)
		}
	}

	store, err := session.Open(cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		os.Exit(1)
	}

	sup := procsup.New(logger)
	publisher := mqttpub.New(cfg, logger)
	defer publisher.Close()

	notifier := notifications.NewService(cfg)
	pipe := pipeline.New(
		cfg,
		store,
		firmware.NewFlasher(cfg, sup, logger),
		usbid.NewBlockFinder(),
		mount.NewManager(cfg, sup, logger),
		decode.NewDecoder(cfg, publisher, logger),
		notifier,
		logger,
	)

	d, err := daemon.New(cfg, store, pipe, sup, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("dockd shutting down")
}
