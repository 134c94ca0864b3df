package queue

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clodputer.lock")

	l := NewExecutorLock(path)
	if _, _, err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	pid, err := HolderPID(path)
	if err != nil {
		t.Fatalf("HolderPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", pid, os.Getpid())
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected lockfile removed after Release, stat err = %v", err)
	}
}

func TestAcquireHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clodputer.lock")

	// Simulate a lockfile held by this test process (definitely alive).
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewExecutorLock(path)
	_, _, err := l.Acquire()
	if err == nil {
		t.Fatal("expected Acquire to fail while lock is held")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %v", err)
	}
	if held.PID != os.Getpid() {
		t.Errorf("HeldError.PID = %d, want %d", held.PID, os.Getpid())
	}
}

func TestAcquireRemovesStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clodputer.lock")

	// Spawn and immediately wait on a short-lived process so its PID is
	// guaranteed dead once we write it into the lockfile.
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Skipf("no usable 'true' binary on this platform: %v", err)
	}
	deadPID := cmd.ProcessState.Pid()

	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewExecutorLock(path)
	staleRemoved, stalePID, err := l.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !staleRemoved {
		t.Error("expected staleRemoved = true")
	}
	if stalePID != deadPID {
		t.Errorf("stalePID = %d, want %d", stalePID, deadPID)
	}

	pid, err := HolderPID(path)
	if err != nil {
		t.Fatalf("HolderPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d (this process)", pid, os.Getpid())
	}
}
