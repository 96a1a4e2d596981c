// Package daemon ties the udev netlink monitor, the plug debouncer, and the
// dock pipeline into a single lifecycle with flock-based locking to prevent
// multiple instances from fighting over the dock hardware.
package daemon
