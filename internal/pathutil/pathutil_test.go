package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestJoin(t *testing.T) {
	got, err := Join("/mnt/wearable", "imu_log.bin")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/mnt/wearable", "imu_log.bin")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestJoinRejectsOverlongPath(t *testing.T) {
	long := strings.Repeat("a", MaxPath)
	_, err := Join("/base", long)
	if err == nil {
		t.Fatal("expected error for overlong path")
	}
	var tooLong *ErrPathTooLong
	if !errors.As(err, &tooLong) {
		t.Fatalf("expected ErrPathTooLong, got %T", err)
	}
	if tooLong.Length <= MaxPath {
		t.Fatalf("reported length %d should exceed %d", tooLong.Length, MaxPath)
	}
}

func TestJoinBoundaryIncludesTerminator(t *testing.T) {
	// A joined path of exactly MaxPath-1 bytes fits; MaxPath bytes does not.
	fits := "/" + strings.Repeat("a", MaxPath-2)
	if _, err := Join(fits); err != nil {
		t.Fatalf("path of %d bytes should fit: %v", len(fits), err)
	}
	overflow := "/" + strings.Repeat("a", MaxPath-1)
	if _, err := Join(overflow); err == nil {
		t.Fatalf("path of %d bytes should be rejected", len(overflow))
	}
}
