// Package pathutil provides bounded path arithmetic for the dock pipeline.
//
// Every stage that derives a destination path goes through Join so that a
// path exceeding the platform limit is rejected before any OS call is made,
// rather than silently truncated.
package pathutil

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MaxPath is the longest path the daemon will hand to the OS, including the
// terminating NUL the kernel accounts for.
const MaxPath = unix.PathMax

// ErrPathTooLong reports a join whose result would exceed MaxPath.
type ErrPathTooLong struct {
	Length int
}

func (e *ErrPathTooLong) Error() string {
	return fmt.Sprintf("path length %d exceeds maximum %d", e.Length, MaxPath)
}

// Join combines path elements like filepath.Join but fails closed when the
// result would exceed MaxPath.
func Join(elem ...string) (string, error) {
	joined := filepath.Join(elem...)
	// +1 for the NUL terminator the syscall layer appends.
	if len(joined)+1 > MaxPath {
		return "", &ErrPathTooLong{Length: len(joined)}
	}
	return joined, nil
}
