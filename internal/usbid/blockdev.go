package usbid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoBlockDevice reports that no block device backed by the tracked USB
// identity is currently enumerated.
var ErrNoBlockDevice = errors.New("no block device for identity")

// BlockFinder scans sysfs for a disk whose USB ancestor carries a given
// identity. Roots are configurable for tests.
type BlockFinder struct {
	sysBlock string
	devRoot  string
}

// NewBlockFinder returns a finder over the real sysfs and /dev trees.
func NewBlockFinder() *BlockFinder {
	return &BlockFinder{sysBlock: "/sys/block", devRoot: "/dev"}
}

// NewBlockFinderAt returns a finder rooted at the given directories.
func NewBlockFinderAt(sysBlock, devRoot string) *BlockFinder {
	return &BlockFinder{sysBlock: sysBlock, devRoot: devRoot}
}

// Find returns the device node (e.g. /dev/sda) of the first disk whose USB
// ancestor matches id, or ErrNoBlockDevice.
func (f *BlockFinder) Find(id Identity) (string, error) {
	entries, err := os.ReadDir(f.sysBlock)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", f.sysBlock, err)
	}

	for _, entry := range entries {
		devicePath, err := filepath.EvalSymlinks(filepath.Join(f.sysBlock, entry.Name()))
		if err != nil {
			continue
		}
		if usbAncestorMatches(devicePath, id) {
			return filepath.Join(f.devRoot, entry.Name()), nil
		}
	}
	return "", ErrNoBlockDevice
}

// WaitFor polls Find at the given interval until a device appears, the
// timeout elapses, or ctx is cancelled.
func (f *BlockFinder) WaitFor(ctx context.Context, id Identity, timeout, interval time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		node, err := f.Find(id)
		if err == nil {
			return node, nil
		}
		if !errors.Is(err, ErrNoBlockDevice) {
			return "", err
		}
		if !time.Now().Add(interval).Before(deadline) {
			return "", fmt.Errorf("%w: gave up after %s", ErrNoBlockDevice, timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// usbAncestorMatches walks up from a resolved sysfs device directory looking
// for the USB device level (the directory carrying idVendor/idProduct
// attributes) and compares it against id.
func usbAncestorMatches(devicePath string, id Identity) bool {
	dir := devicePath
	for {
		vendor, vErr := readSysAttr(dir, "idVendor")
		product, pErr := readSysAttr(dir, "idProduct")
		if vErr == nil && pErr == nil {
			return id.Matches(vendor, product)
		}

		parent := filepath.Dir(dir)
		if parent == dir || parent == "/" || parent == "." {
			return false
		}
		dir = parent
	}
}

func readSysAttr(dir, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
