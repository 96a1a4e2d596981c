// Package session models one end-to-end processing run per physical plug
// event and persists its history in SQLite.
package session

import (
	"regexp"
	"time"
)

// Status is the monotonically advancing stage marker of a session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusMounted   Status = "mounted"
	StatusExtracted Status = "extracted"
	StatusDecoded   Status = "decoded"
	StatusArchived  Status = "archived"
	StatusAborted   Status = "aborted"
)

// KeyLayout is the wall-clock-derived session identifier format. Second
// resolution keys sort in creation order by name.
const KeyLayout = "20060102_150405"

var keyPattern = regexp.MustCompile(`^\d{8}_\d{6}$`)

// NewKey derives a session key from the given wall-clock time.
func NewKey(t time.Time) string {
	return t.Format(KeyLayout)
}

// ValidKey reports whether s matches the session key pattern.
func ValidKey(s string) bool {
	return keyPattern.MatchString(s)
}

// Session is one pipeline run, owned exclusively by the pipeline for its
// duration. Terminal status is archived or aborted.
type Session struct {
	ID               int64
	Key              string
	Directory        string
	Status           Status
	ErrorMessage     string
	FirmwareImage    string
	FilesProcessed   int
	RecordsPublished int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SetAborted marks the session aborted with the given cause.
func (s *Session) SetAborted(message string) {
	s.Status = StatusAborted
	s.ErrorMessage = message
}
