package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dockd/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ExtractDir = filepath.Join(dir, "extract")
	cfg.Paths.MountPoint = filepath.Join(dir, "mnt")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Firmware.Dir = filepath.Join(dir, "firmware")

	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "20260824_120000", "/tmp/extract/20260824_120000")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if sess.Status != StatusCreated {
		t.Fatalf("status = %s, want created", sess.Status)
	}

	got, err := store.GetByKey(ctx, "20260824_120000")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sess.ID || got.Directory != sess.Directory {
		t.Fatalf("fetched session mismatch: %+v vs %+v", got, sess)
	}
}

func TestCreateDuplicateKeyFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "20260824_120000", "/a"); err != nil {
		t.Fatal(err)
	}
	_, err := store.Create(ctx, "20260824_120000", "/b")
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestUpdatePersistsProgress(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, "20260824_120000", "/a")
	if err != nil {
		t.Fatal(err)
	}

	sess.Status = StatusDecoded
	sess.FirmwareImage = "fw_v2.bin"
	sess.FilesProcessed = 3
	sess.RecordsPublished = 1200
	if err := store.Update(ctx, sess); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDecoded || got.FirmwareImage != "fw_v2.bin" ||
		got.FilesProcessed != 3 || got.RecordsPublished != 1200 {
		t.Fatalf("update not persisted: %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatal("updated_at should not precede created_at")
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{"20260824_120000", "20260824_120001", "20260824_120002"}
	for _, key := range keys {
		if _, err := store.Create(ctx, key, "/d/"+key); err != nil {
			t.Fatal(err)
		}
	}

	sessions, err := store.List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Key != "20260824_120002" || sessions[1].Key != "20260824_120001" {
		t.Fatalf("wrong order: %s, %s", sessions[0].Key, sessions[1].Key)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ExtractDir = filepath.Join(dir, "extract")
	cfg.Paths.MountPoint = filepath.Join(dir, "mnt")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Firmware.Dir = filepath.Join(dir, "firmware")

	store, err := Open(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create(context.Background(), "20260824_120000", "/a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if _, err := reopened.GetByKey(context.Background(), "20260824_120000"); err != nil {
		t.Fatalf("session lost across reopen: %v", err)
	}
}

func TestArchiveMovesDirectory(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, "20260824_120000")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sessionDir, "imu_log.bin"), []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	sess := &Session{Key: "20260824_120000", Directory: sessionDir, Status: StatusDecoded}
	archiveDir := filepath.Join(root, "archive")
	if err := Archive(sess, archiveDir); err != nil {
		t.Fatal(err)
	}

	if sess.Status != StatusArchived {
		t.Fatalf("status = %s, want archived", sess.Status)
	}
	want := filepath.Join(archiveDir, "20260824_120000")
	if sess.Directory != want {
		t.Fatalf("directory = %s, want %s", sess.Directory, want)
	}
	if _, err := os.Stat(filepath.Join(want, "imu_log.bin")); err != nil {
		t.Fatalf("archived contents missing: %v", err)
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Fatal("original directory should be gone")
	}
}

func TestArchiveRefusesExistingTarget(t *testing.T) {
	root := t.TempDir()
	sessionDir := filepath.Join(root, "20260824_120000")
	archiveDir := filepath.Join(root, "archive")
	for _, dir := range []string{sessionDir, filepath.Join(archiveDir, "20260824_120000")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	sess := &Session{Key: "20260824_120000", Directory: sessionDir}
	if err := Archive(sess, archiveDir); err == nil {
		t.Fatal("expected collision error")
	}
	if sess.Status == StatusArchived {
		t.Fatal("status must not advance on failure")
	}
}

func TestKeyHelpers(t *testing.T) {
	at := time.Date(2026, 8, 24, 13, 45, 9, 0, time.Local)
	key := NewKey(at)
	if key != "20260824_134509" {
		t.Fatalf("NewKey = %s", key)
	}
	if !ValidKey(key) {
		t.Fatal("generated key should validate")
	}
	for _, bad := range []string{"", "2026-08-24", "20260824134509", "20260824_1345"} {
		if ValidKey(bad) {
			t.Fatalf("key %q should not validate", bad)
		}
	}
}
