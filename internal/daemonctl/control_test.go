package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tailor/internal/testsupport"
)

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, "job-1")

	snapshot, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Reachable || snapshot.Running {
		t.Fatal("expected offline snapshot")
	}
	if snapshot.Workflow.JobStats["pending"] != 1 {
		t.Fatalf("expected store fallback stats, got %v", snapshot.Workflow.JobStats)
	}
	if snapshot.DatabasePath != cfg.DatabasePath() || len(snapshot.Checks) == 0 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	db := snapshot.Checks[len(snapshot.Checks)-1]
	if db.Name != "Job database" || !db.Passed || !strings.Contains(db.Detail, "1 jobs") {
		t.Fatalf("unexpected database check: %+v", db)
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(cfg, 10*time.Millisecond); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := ProcessInfo(cfg.SocketPath())
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo: alive=%v pid=%d err=%v", alive, pid, err)
	}
	if err := WaitForShutdown(cfg.SocketPath(), 10*time.Millisecond); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestForceKillProcessRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "tailord.pid")
	if err := os.WriteFile(pidPath, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ForceKillProcess(pidPath, os.Getpid()); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
	if _, err := ForceKillProcess(pidPath, 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
