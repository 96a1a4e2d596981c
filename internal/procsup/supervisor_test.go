package procsup

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"dockd/internal/logging"
)

func TestRunSuccess(t *testing.T) {
	s := New(logging.NewNop())
	if err := s.Run(context.Background(), "true"); err != nil {
		t.Fatalf("true should succeed: %v", err)
	}
}

func TestRunNonZeroExitIsError(t *testing.T) {
	s := New(logging.NewNop())
	err := s.Run(context.Background(), "false")
	if err == nil {
		t.Fatal("false should report an error")
	}
}

func TestSpawnMissingBinary(t *testing.T) {
	s := New(logging.NewNop())
	if _, err := s.Spawn("dockd-no-such-binary"); err == nil {
		t.Fatal("expected spawn failure for missing binary")
	}
}

func TestWaitTimeout(t *testing.T) {
	s := New(logging.NewNop())
	handle, err := s.Spawn("sleep", "5")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = handle.Signal(syscall.SIGKILL)
		_ = handle.WaitTimeout(2 * time.Second)
	}()

	err = handle.WaitTimeout(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if handle.Exited() {
		t.Fatal("child should still be running after timed-out wait")
	}
}

func TestSignalTerminatesChild(t *testing.T) {
	s := New(logging.NewNop())
	handle, err := s.Spawn("sleep", "30")
	if err != nil {
		t.Fatal(err)
	}
	if err := handle.Signal(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if err := handle.WaitTimeout(2 * time.Second); err == nil {
		t.Fatal("signalled child should report abnormal termination")
	}
	if !handle.Exited() {
		t.Fatal("child should be reaped after signal")
	}
}

func TestSignalActiveForwardsToLatestChild(t *testing.T) {
	s := New(logging.NewNop())
	handle, err := s.Spawn("sleep", "30")
	if err != nil {
		t.Fatal(err)
	}
	s.SignalActive(syscall.SIGTERM)
	if err := handle.WaitTimeout(2 * time.Second); err == nil {
		t.Fatal("active child should have been terminated")
	}

	// Once reaped, the handle is no longer active and forwarding is a no-op.
	s.SignalActive(syscall.SIGTERM)
}

func TestSignalAfterExitIsNoop(t *testing.T) {
	s := New(logging.NewNop())
	handle, err := s.Spawn("true")
	if err != nil {
		t.Fatal(err)
	}
	if err := handle.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := handle.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signalling a reaped child should be a no-op: %v", err)
	}
}
