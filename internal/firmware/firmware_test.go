package firmware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dockd/internal/config"
	"dockd/internal/logging"
	"dockd/internal/procsup"
	"dockd/internal/services"
	"dockd/internal/testsupport"
)

func testConfig(t *testing.T, dfuBinary string) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Firmware.DFUBinary = dfuBinary
	if err := os.MkdirAll(cfg.Firmware.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNextImage(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty directory", func(t *testing.T) {
		image, err := NextImage(dir)
		if err != nil {
			t.Fatal(err)
		}
		if image != "" {
			t.Fatalf("expected no image, got %q", image)
		}
	})

	t.Run("missing directory is not an error", func(t *testing.T) {
		image, err := NextImage(filepath.Join(dir, "nope"))
		if err != nil {
			t.Fatal(err)
		}
		if image != "" {
			t.Fatalf("expected no image, got %q", image)
		}
	})

	t.Run("picks bin files only, ordered by name", func(t *testing.T) {
		for _, name := range []string{"b.bin", "a.bin", "notes.txt"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("fw"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
		if err := os.MkdirAll(filepath.Join(dir, "archive"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "archive", "c.bin"), []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}

		image, err := NextImage(dir)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(image) != "a.bin" {
			t.Fatalf("expected a.bin, got %q", image)
		}
	})
}

func TestFlashArchivesOnSuccess(t *testing.T) {
	cfg := testConfig(t, "true")
	flasher := NewFlasher(cfg, procsup.New(logging.NewNop()), logging.NewNop())
	flasher.now = func() time.Time {
		return time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)
	}

	image := filepath.Join(cfg.Firmware.Dir, "fw-v2.bin")
	if err := os.WriteFile(image, []byte("firmware"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := flasher.Flash(context.Background(), image); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(image); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("consumed image should leave the watch directory")
	}
	archived := filepath.Join(cfg.FirmwareArchiveDir(), "20260824_101500.bin")
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("archived image missing: %v", err)
	}

	// The watch directory no longer offers the image for a second pass.
	next, err := NextImage(cfg.Firmware.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if next != "" {
		t.Fatalf("image must not be attempted twice, found %q", next)
	}
}

func TestFlashFailureLeavesImageInPlace(t *testing.T) {
	cfg := testConfig(t, "false")
	flasher := NewFlasher(cfg, procsup.New(logging.NewNop()), logging.NewNop())

	image := filepath.Join(cfg.Firmware.Dir, "fw-v2.bin")
	if err := os.WriteFile(image, []byte("firmware"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := flasher.Flash(context.Background(), image)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if _, statErr := os.Stat(image); statErr != nil {
		t.Fatal("failed image must stay in the watch directory")
	}
}
