// Package config loads, validates, and defaults the TOML configuration for
// the dock daemon and CLI.
package config
