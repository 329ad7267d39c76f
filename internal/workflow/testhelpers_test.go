package workflow_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/testsupport"
	"tailor/internal/workflow"
	"tailor/internal/workspace"
)

const enhancedResume = "# Jane Doe\n\nStaff Go engineer. Kubernetes operators, Terraform and Postgres at scale.\n"

var coverLetter = "Dear Acme team,\n\n" + strings.Repeat("I build reliable Go services on Kubernetes. ", 5) + "\n\nRegards,\nJane"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	cfg      *config.Config
	store    *jobstore.Store
	detector *workflow.Detector
	operator *workflow.Operator
	layout   workspace.Layout
	clock    *fakeClock
	metrics  *workflow.Metrics
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return newHarnessFromConfig(t, cfg)
}

func newHarnessFromConfig(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	clock := newFakeClock()
	metrics := workflow.NewMetrics(nil)
	detector := workflow.NewDetector(cfg, store, testsupport.Pipeline(t, cfg.Pipeline), logging.NewNop(),
		workflow.WithClock(clock.Now),
		workflow.WithMetrics(metrics),
	)
	return &harness{
		cfg:      cfg,
		store:    store,
		detector: detector,
		operator: workflow.NewOperator(detector, logging.NewNop()),
		layout:   detector.Layout(),
		clock:    clock,
		metrics:  metrics,
	}
}

func (h *harness) submit(t *testing.T, id string) *jobstore.Job {
	t.Helper()
	job, _, err := h.operator.Submit(context.Background(), workflow.Submission{ID: id, Input: testsupport.SampleInput()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func (h *harness) advance(t *testing.T, id string) workflow.Result {
	t.Helper()
	result, err := h.detector.CheckAndAdvance(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckAndAdvance(%s): %v", id, err)
	}
	return result
}

func (h *harness) job(t *testing.T, id string) *jobstore.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	return job
}

func (h *harness) instructionPath(id, stage string) string {
	return h.layout.InstructionPath(id, stage)
}

func (h *harness) outputPath(id, stage string) string {
	def, ok := h.detector.Pipeline().Lookup(stage)
	if !ok {
		panic("unknown stage " + stage)
	}
	return h.layout.OutputPath(id, stage, def.OutputArtifact)
}

func (h *harness) writeOutput(t *testing.T, id, stage, content string) {
	t.Helper()
	testsupport.WriteFile(t, h.outputPath(id, stage), content)
}

func (h *harness) events(t *testing.T, id string, action string) []jobstore.Event {
	t.Helper()
	events, err := h.store.Events(context.Background(), id)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var filtered []jobstore.Event
	for _, ev := range events {
		if action == "" || ev.Action == action {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

func assertStages(t *testing.T, job *jobstore.Job, want ...jobstore.StageStatus) {
	t.Helper()
	if len(job.Stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(job.Stages))
	}
	for i, status := range want {
		if job.Stages[i].Status != status {
			t.Fatalf("stage %d (%s): expected %s, got %s", i, job.Stages[i].Name, status, job.Stages[i].Status)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
