package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[device]
vendor_id = "2FE3"
product_id = "0100"

[broker]
host = "broker.local"
port = 1883
topic = "BORUS/extf"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("resolved path %q, want %q", resolved, path)
	}
	if cfg.Device.VendorID != "2fe3" {
		t.Fatalf("vendor id should be lowercased, got %q", cfg.Device.VendorID)
	}
	if cfg.Broker.Host != "broker.local" {
		t.Fatalf("unexpected broker host %q", cfg.Broker.Host)
	}
	// Untouched sections keep defaults.
	if cfg.Decode.LogFileName != "imu_log.bin" {
		t.Fatalf("unexpected log file name %q", cfg.Decode.LogFileName)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := Load(missing)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("missing file should not be reported as existing")
	}
	if cfg.Device.VendorID != defaultVendorID {
		t.Fatalf("expected default vendor id, got %q", cfg.Device.VendorID)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad vendor id", func(c *Config) { c.Device.VendorID = "xyz" }, "vendor_id"},
		{"bad port", func(c *Config) { c.Broker.Port = 0 }, "broker.port"},
		{"bad format", func(c *Config) { c.Decode.RecordFormat = "csv" }, "record_format"},
		{"zero quiescence", func(c *Config) { c.Workflow.QuiescenceWindowMS = 0 }, "quiescence"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.normalize(); err != nil {
				t.Fatal(err)
			}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestArchiveDirs(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	if got := cfg.ArchiveDir(); got != filepath.Join(cfg.Paths.ExtractDir, "archive") {
		t.Fatalf("unexpected archive dir %q", got)
	}
	if got := cfg.FirmwareArchiveDir(); got != filepath.Join(cfg.Firmware.Dir, "archive") {
		t.Fatalf("unexpected firmware archive dir %q", got)
	}
}
