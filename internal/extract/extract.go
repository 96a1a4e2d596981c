// Package extract implements the filesystem side of a dock session: copying
// the mounted wearable tree into the session directory, wiping the onboard
// storage afterwards, and waiting for the mount marker to settle.
//
// Data safety rule: copy-then-wipe, never move. The wipe only runs after the
// whole copy reported success, so a crash mid-copy never loses source data.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"dockd/internal/pathutil"
)

// copyBufferSize is the fixed streaming buffer used for file contents.
const copyBufferSize = 256 * 1024

// ErrSpecialFile reports a source entry that is neither a directory nor a
// regular file. Symlinks and device nodes on the wearable indicate a
// corrupted filesystem, so the copy aborts rather than guessing.
var ErrSpecialFile = errors.New("special file in source tree")

// CopyTree mirrors the tree rooted at src into dst. Directories are created
// idempotently; regular files are streamed with truncate-on-open so a
// re-invocation overwrites rather than duplicates. Any error aborts the whole
// operation.
func CopyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create destination root: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		target, err := pathutil.Join(dst, rel)
		if err != nil {
			return fmt.Errorf("destination path for %q: %w", rel, err)
		}

		switch {
		case entry.IsDir():
			if err := os.Mkdir(target, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("create directory %q: %w", target, err)
			}
			return nil
		case entry.Type().IsRegular():
			return copyFile(path, target, buf)
		default:
			return fmt.Errorf("%w: %q (%s)", ErrSpecialFile, rel, entry.Type())
		}
	})
}

func copyFile(src, dst string, buf []byte) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open destination %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("copy %q: %w", src, err)
	}
	return out.Close()
}

// WipeTree removes everything beneath root in post-order, but never root
// itself, so the mount point can be reused immediately. Files and symlinks
// are unlinked; directories are removed once empty. An already-empty tree is
// a success.
func WipeTree(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read %q: %w", root, err)
	}
	for _, entry := range entries {
		target, err := pathutil.Join(root, entry.Name())
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if err := WipeTree(target); err != nil {
				return err
			}
			if err := os.Remove(target); err != nil {
				return fmt.Errorf("remove directory %q: %w", target, err)
			}
			continue
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("remove %q: %w", target, err)
		}
	}
	return nil
}

// WaitForStableFile polls for dir/name to exist with a non-zero size that is
// unchanged between two consecutive polls, confirming the mounted filesystem
// is live and the log is fully visible. It returns the file path on success
// and an error when the deadline passes or ctx is cancelled.
func WaitForStableFile(ctx context.Context, dir, name string, timeout, interval time.Duration) (string, error) {
	path, err := pathutil.Join(dir, name)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	var prevSize int64 = -1
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			if info.Size() == prevSize {
				return path, nil
			}
			prevSize = info.Size()
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
	return "", fmt.Errorf("%q did not settle within %s", filepath.Join(dir, name), timeout)
}
