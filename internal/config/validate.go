package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var hexIDPattern = regexp.MustCompile(`^[0-9a-f]{4}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateMount(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateDecode(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ExtractDir) == "" {
		return errors.New("paths.extract_dir must be set")
	}
	if strings.TrimSpace(c.Paths.MountPoint) == "" {
		return errors.New("paths.mount_point must be set")
	}
	return nil
}

func (c *Config) validateDevice() error {
	if !hexIDPattern.MatchString(c.Device.VendorID) {
		return fmt.Errorf("device.vendor_id must be four lowercase hex digits, got %q", c.Device.VendorID)
	}
	if !hexIDPattern.MatchString(c.Device.ProductID) {
		return fmt.Errorf("device.product_id must be four lowercase hex digits, got %q", c.Device.ProductID)
	}
	if c.Device.BlockWaitTimeout <= 0 {
		return errors.New("device.block_wait_timeout must be positive")
	}
	if c.Device.BlockPollIntervalMS <= 0 {
		return errors.New("device.block_poll_interval_ms must be positive")
	}
	return nil
}

func (c *Config) validateMount() error {
	if strings.TrimSpace(c.Mount.HelperBinary) == "" {
		return errors.New("mount.helper_binary must be set")
	}
	if c.Mount.MarkerTimeout <= 0 {
		return errors.New("mount.marker_timeout must be positive")
	}
	if c.Mount.UnmountTimeout <= 0 {
		return errors.New("mount.unmount_timeout must be positive")
	}
	return nil
}

func (c *Config) validateBroker() error {
	if strings.TrimSpace(c.Broker.Host) == "" {
		return errors.New("broker.host must be set")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be in 1..65535, got %d", c.Broker.Port)
	}
	if strings.TrimSpace(c.Broker.Topic) == "" {
		return errors.New("broker.topic must be set")
	}
	if c.Broker.PublishDelayMS < 0 {
		return errors.New("broker.publish_delay_ms must not be negative")
	}
	return nil
}

func (c *Config) validateDecode() error {
	if strings.TrimSpace(c.Decode.LogFileName) == "" {
		return errors.New("decode.log_file_name must be set")
	}
	switch strings.ToLower(strings.TrimSpace(c.Decode.RecordFormat)) {
	case "auto", "imu", "imu-pressure":
		return nil
	default:
		return fmt.Errorf("decode.record_format must be auto, imu, or imu-pressure, got %q", c.Decode.RecordFormat)
	}
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QuiescenceWindowMS <= 0 {
		return errors.New("workflow.quiescence_window_ms must be positive")
	}
	if c.Workflow.EventTickIntervalMS <= 0 {
		return errors.New("workflow.event_tick_interval_ms must be positive")
	}
	return nil
}
