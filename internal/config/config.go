package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for the dock daemon.
type Paths struct {
	ExtractDir string `toml:"extract_dir"`
	MountPoint string `toml:"mount_point"`
	LogDir     string `toml:"log_dir"`
}

// Device identifies the wearable on the USB bus.
type Device struct {
	VendorID            string `toml:"vendor_id"`
	ProductID           string `toml:"product_id"`
	BlockWaitTimeout    int    `toml:"block_wait_timeout"`
	BlockPollIntervalMS int    `toml:"block_poll_interval_ms"`
}

// Firmware contains DFU update settings.
type Firmware struct {
	Dir          string `toml:"dir"`
	DFUBinary    string `toml:"dfu_binary"`
	AltSetting   int    `toml:"alt_setting"`
	TransferSize int    `toml:"transfer_size"`
}

// Mount contains LittleFS FUSE helper settings.
type Mount struct {
	HelperBinary   string   `toml:"helper_binary"`
	HelperArgs     []string `toml:"helper_args"`
	MarkerTimeout  int      `toml:"marker_timeout"`
	UnmountTimeout int      `toml:"unmount_timeout"`
	UmountBinary   string   `toml:"umount_binary"`
}

// Broker contains MQTT publish settings.
type Broker struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Topic          string `toml:"topic"`
	ClientID       string `toml:"client_id"`
	PublishDelayMS int    `toml:"publish_delay_ms"`
	ConnectTimeout int    `toml:"connect_timeout"`
}

// Decode contains sensor log decoding settings.
type Decode struct {
	LogFileName  string `toml:"log_file_name"`
	LogsSubdir   string `toml:"logs_subdir"`
	RecordFormat string `toml:"record_format"`
}

// Workflow contains daemon timing configuration.
type Workflow struct {
	QuiescenceWindowMS  int `toml:"quiescence_window_ms"`
	EventTickIntervalMS int `toml:"event_tick_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Sessions       bool   `toml:"sessions"`
	Firmware       bool   `toml:"firmware"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for the dock daemon.
//
// Configuration sections by subsystem:
//   - Paths: extraction, mount point, and log directories
//   - Device: USB identity filter and block-device reappearance timing
//   - Firmware: DFU watch directory and dfu-util invocation
//   - Mount: LittleFS FUSE helper and teardown timing
//   - Broker: MQTT connection and publish pacing
//   - Decode: log file naming and record format selection
//   - Workflow: debounce and event loop timing
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Device        Device        `toml:"device"`
	Firmware      Firmware      `toml:"firmware"`
	Mount         Mount         `toml:"mount"`
	Broker        Broker        `toml:"broker"`
	Decode        Decode        `toml:"decode"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dockd/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dockd.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.ExtractDir, err = expandPath(c.Paths.ExtractDir); err != nil {
		return err
	}
	if c.Paths.MountPoint, err = expandPath(c.Paths.MountPoint); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Firmware.Dir, err = expandPath(c.Firmware.Dir); err != nil {
		return err
	}
	c.Device.VendorID = strings.ToLower(strings.TrimSpace(c.Device.VendorID))
	c.Device.ProductID = strings.ToLower(strings.TrimSpace(c.Device.ProductID))
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.ExtractDir,
		c.ArchiveDir(),
		c.Paths.LogDir,
		c.Firmware.Dir,
		c.FirmwareArchiveDir(),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ArchiveDir returns the directory fully processed sessions are moved into.
func (c *Config) ArchiveDir() string {
	if c.Paths.ExtractDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.ExtractDir, "archive")
}

// FirmwareArchiveDir returns the directory consumed firmware images are moved into.
func (c *Config) FirmwareArchiveDir() string {
	if c.Firmware.Dir == "" {
		return ""
	}
	return filepath.Join(c.Firmware.Dir, "archive")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
