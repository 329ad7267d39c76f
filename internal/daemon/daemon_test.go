package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tailor/internal/daemon"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/testsupport"
	"tailor/internal/workflow"
)

func newDaemon(t *testing.T, bind string) (*daemon.Daemon, *jobstore.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.MetricsBind = bind
	cfg.Workflow.PollInterval = 3600
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	reg := prometheus.NewRegistry()
	metrics := workflow.NewMetrics(reg)
	detector := workflow.NewDetector(cfg, store, testsupport.Pipeline(t, cfg.Pipeline), logger, workflow.WithMetrics(metrics))
	mgr := workflow.NewManager(cfg, store, detector, logger, metrics)
	d, err := daemon.New(cfg, store, logger, mgr, reg)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || status.PID == 0 || status.MetricsBind != "" {
		t.Fatalf("unexpected status: %+v", status)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.PollInterval = 3600
	logger := logging.NewNop()
	build := func() *daemon.Daemon {
		store := testsupport.MustOpenStore(t, cfg)
		detector := workflow.NewDetector(cfg, store, testsupport.Pipeline(t, cfg.Pipeline), logger)
		d, err := daemon.New(cfg, store, logger, workflow.NewManager(cfg, store, detector, logger, nil), nil)
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		t.Cleanup(func() { d.Stop() })
		return d
	}
	first, second := build(), build()
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestDaemonJobAccessors(t *testing.T) {
	d, store := newDaemon(t, "")
	ctx := context.Background()
	job, _, err := d.Operator().Submit(ctx, workflow.Submission{ID: "job-1", Input: testsupport.SampleInput()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	jobs, err := d.ListJobs(ctx, []jobstore.JobStatus{jobstore.JobRunning})
	if err != nil || len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("ListJobs: jobs=%v err=%v", jobs, err)
	}
	if _, err := d.GetJob(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	result, err := d.Advance(ctx, job.ID)
	if err != nil || result.Outcome != workflow.OutcomePending {
		t.Fatalf("Advance: result=%+v err=%v", result, err)
	}
	events, err := d.Events(ctx, job.ID)
	if err != nil || len(events) < 2 {
		t.Fatalf("Events: %d err=%v", len(events), err)
	}
	if d.Pipeline().Names()[0] != pipeline.StageEnhance {
		t.Fatal("unexpected pipeline")
	}
	if _, err := store.Get(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
}

func TestDaemonServesMetrics(t *testing.T) {
	d, _ := newDaemon(t, "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, _, err := d.Operator().Submit(ctx, workflow.Submission{ID: "job-1", Input: testsupport.SampleInput()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	addr := d.Status(ctx).MetricsBind
	if strings.HasSuffix(addr, ":0") {
		t.Fatalf("expected bound address, got %s", addr)
	}

	body := httpGet(t, fmt.Sprintf("http://%s/metrics", addr), http.StatusOK)
	if !strings.Contains(body, "tailor_stage_transitions_total") {
		t.Fatalf("metrics output missing transitions counter:\n%s", body)
	}
	if body := httpGet(t, fmt.Sprintf("http://%s/healthz", addr), http.StatusOK); !strings.Contains(body, `"running":true`) {
		t.Fatalf("unexpected health body %q", body)
	}
}

func httpGet(t *testing.T, url string, wantStatus int) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, wantStatus)
	}
	return string(data)
}
