package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockAcquisition(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	lockPath := filepath.Join(tempDir, LockFileName)
	if lock.Path() != lockPath {
		t.Errorf("expected lock path %s, got %s", lockPath, lock.Path())
	}

	holder := ReadHolder(lockPath)
	if holder.PID != os.Getpid() {
		t.Errorf("expected holder PID %d, got %d", os.Getpid(), holder.PID)
	}
	if !holder.Running {
		t.Error("expected holder to be reported running")
	}
	if holder.Started == "" {
		t.Error("expected start time recorded")
	}
}

func TestLockConflict(t *testing.T) {
	tempDir := t.TempDir()

	lock1, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(tempDir)
	if err == nil {
		lock2.Release()
		t.Fatal("Expected second lock acquisition to fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got %T", err)
	}
	if lockErr.Holder.PID != os.Getpid() {
		t.Errorf("expected conflicting holder PID %d, got %d", os.Getpid(), lockErr.Holder.PID)
	}
	if !strings.Contains(err.Error(), "another UltimateBot instance") {
		t.Errorf("unexpected error message: %s", err)
	}

	// The failed attempt must not clobber the holder's information.
	if got := ReadHolder(lock1.Path()).PID; got != os.Getpid() {
		t.Errorf("holder info lost after conflicting attempt, PID %d", got)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	tempDir := t.TempDir()

	lock, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("expected lock file removed, stat err = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release returned error: %v", err)
	}

	lock2, err := AcquireLock(tempDir)
	if err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	lock2.Release()
}

func TestReadHolder(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantPID int
		want    string
	}{
		{"pid and start", "pid=12345\nstarted=2024-03-01T09:30:00Z\n", 12345, "started 2024-03-01T09:30:00Z"},
		{"pid only", "pid=999999999\n", 999999999, "stale lock"},
		{"garbage", "hello world", 0, "unknown process"},
		{"bad pid", "pid=abc\n", 0, "unknown process"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, fmt.Sprintf("lock-%d", i))
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			h := ReadHolder(path)
			if h.PID != tt.wantPID {
				t.Errorf("expected PID %d, got %d", tt.wantPID, h.PID)
			}
			if !strings.Contains(h.String(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, h.String())
			}
		})
	}

	if h := ReadHolder(filepath.Join(dir, "missing")); h.PID != 0 {
		t.Errorf("expected zero holder for missing file, got %+v", h)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("Current process should be detected as running")
	}
	if isProcessRunning(999999999) {
		t.Error("Non-existent process should not be detected as running")
	}
}

func TestNonExistentDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "state", "nested")

	lock, err := AcquireLock(nested)
	if err != nil {
		t.Fatalf("Failed to acquire lock in non-existent directory: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(nested); err != nil {
		t.Errorf("expected directory created: %v", err)
	}
}
