package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if !IsInstalled() {
		t.Skip("git not installed")
	}
}

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)
	ctx := context.Background()

	unlock, err := client.Lock(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(tmpDir, LockName)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("Lock file not created")
	}

	// A second acquisition gives up once the timeout elapses.
	client.LockTimeout = 50 * time.Millisecond
	if _, err := client.Lock(ctx); err == nil {
		t.Error("expected contention error while the lock is held")
	}

	unlock()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file not removed after unlock")
	}
}

func TestClient_LockHonoursContext(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)

	unlock, err := client.Lock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Lock(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestClient_Init(t *testing.T) {
	requireGit(t)
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)
	ctx := context.Background()

	if err := client.Init(ctx); err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".git")); os.IsNotExist(err) {
		t.Error(".git directory not created")
	}
	if !client.IsRepo(ctx) {
		t.Error("IsRepo = false after Init")
	}
}

func TestClient_Record(t *testing.T) {
	requireGit(t)
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, nil)
	client.Name, client.Email = "tester", "tester@example.com"
	ctx := context.Background()

	if err := client.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "a.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := client.Record(ctx, "set a", "a.yaml"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	// Nothing staged: no new commit.
	if err := client.Record(ctx, "noop", "a.yaml"); err != nil {
		t.Fatalf("Record without changes failed: %v", err)
	}

	subjects, err := client.Log(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(subjects) != 1 || subjects[0] != "set a" {
		t.Errorf("unexpected history: %v", subjects)
	}
}
