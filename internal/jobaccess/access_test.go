package jobaccess_test

import (
	"context"
	"errors"
	"testing"

	"tailor/internal/ipc"
	"tailor/internal/jobaccess"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/services"
	"tailor/internal/testsupport"
	"tailor/internal/workflow"
)

func TestOpenWithFallbackUsesStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	detector := workflow.NewDetector(cfg, store, testsupport.Pipeline(t, cfg.Pipeline), logging.NewNop())

	session, err := jobaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return nil, errors.New("daemon offline") },
		func() (*jobstore.Store, *workflow.Detector, error) { return store, detector, nil },
	)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	access := session.Access
	if access.Daemon() {
		t.Fatal("expected store-backed access")
	}

	ctx := context.Background()
	testsupport.NewJob(t, store, "job-1", "enhance", "cover-letter")

	result, err := access.Advance(ctx, "job-1")
	if err != nil || result.Issued != "enhance" {
		t.Fatalf("Advance: result=%+v err=%v", result, err)
	}
	jobs, err := access.List(ctx, []string{"running"})
	if err != nil || len(jobs) != 1 {
		t.Fatalf("List: jobs=%d err=%v", len(jobs), err)
	}
	job, events, err := access.Describe(ctx, "job-1", true)
	if err != nil || job.Stages[0].OutputPath != "job-1/enhance/enhanced.md" || len(events) == 0 {
		t.Fatalf("Describe: job=%+v events=%d err=%v", job, len(events), err)
	}
	if _, _, err := access.Describe(ctx, "nope", false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	stats, err := access.Stats(ctx)
	if err != nil || stats["running"] != 1 {
		t.Fatalf("Stats: %v err=%v", stats, err)
	}
	if err := access.Trigger(ctx, "job-1"); err != nil {
		t.Fatalf("Trigger without daemon must be a no-op: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenWithFallbackRequiresStoreOpener(t *testing.T) {
	if _, err := jobaccess.OpenWithFallback(nil, nil); err == nil {
		t.Fatal("expected error without any opener")
	}
}
