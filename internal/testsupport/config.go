package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dockd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ExtractDir = filepath.Join(base, "extract")
	cfgVal.Paths.MountPoint = filepath.Join(base, "mnt")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Firmware.Dir = filepath.Join(base, "firmware")
	cfgVal.Broker.PublishDelayMS = 0
	cfgVal.Device.BlockWaitTimeout = 1
	cfgVal.Device.BlockPollIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithIdentity overrides the tracked USB identity on the test config.
func WithIdentity(vendorID, productID string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.VendorID = vendorID
		b.cfg.Device.ProductID = productID
	}
}

// WithNtfyTopic points the notification service at the given endpoint and
// enables every notification category.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
		b.cfg.Notifications.Sessions = true
		b.cfg.Notifications.Firmware = true
		b.cfg.Notifications.Errors = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"dfu-util", "lfs", "umount"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
