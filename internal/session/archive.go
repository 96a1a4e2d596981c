package session

import (
	"fmt"
	"os"

	"dockd/internal/pathutil"
)

// Archive moves the session directory into the archive namespace and updates
// the session's directory and status. The move is a rename, so archive must
// live on the same filesystem as the extraction root.
func Archive(sess *Session, archiveDir string) error {
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	target, err := pathutil.Join(archiveDir, sess.Key)
	if err != nil {
		return fmt.Errorf("archive path: %w", err)
	}
	if _, err := os.Stat(target); err == nil {
		return fmt.Errorf("archive target already exists: %s", target)
	}
	if err := os.Rename(sess.Directory, target); err != nil {
		return fmt.Errorf("archive session %s: %w", sess.Key, err)
	}

	sess.Directory = target
	sess.Status = StatusArchived
	return nil
}
