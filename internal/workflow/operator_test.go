package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"tailor/internal/jobstore"
	"tailor/internal/services"
	"tailor/internal/testsupport"
	"tailor/internal/workflow"
)

func completeJob(t *testing.T, h *harness, id string) {
	t.Helper()
	h.submit(t, id)
	h.writeOutput(t, id, "enhance", enhancedResume)
	h.advance(t, id)
	h.writeOutput(t, id, "cover-letter", coverLetter)
	h.advance(t, id)
	if job := h.job(t, id); job.Status != jobstore.JobCompleted {
		t.Fatalf("setup: expected completed job, got %s", job.Status)
	}
}

func TestSubmitPreparesWorkspace(t *testing.T) {
	h := newHarness(t)
	job, result, err := h.operator.Submit(context.Background(), workflow.Submission{Input: testsupport.SampleInput()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID == "" || result.Issued != "enhance" {
		t.Fatalf("unexpected submit result: job=%+v result=%+v", job, result)
	}
	for _, stage := range []string{"enhance", "cover-letter"} {
		info, err := os.Stat(h.layout.StageDir(job.ID, stage))
		if err != nil || !info.IsDir() {
			t.Fatalf("stage dir %s missing: %v", stage, err)
		}
	}
	if !fileExists(h.instructionPath(job.ID, "enhance")) {
		t.Fatal("expected first instruction on disk")
	}

	_, _, err = h.operator.Submit(context.Background(), workflow.Submission{Input: jobstore.Input{ResumeText: "x"}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing job description, got %v", err)
	}
}

func TestResetStageArchivesAndReissues(t *testing.T) {
	h := newHarness(t)
	completeJob(t, h, "job-1")
	ctx := services.WithActor(context.Background(), "alice")

	if err := h.operator.ResetStage(ctx, "job-1", "enhance", "rewrite with new notes"); err != nil {
		t.Fatalf("ResetStage: %v", err)
	}
	job := h.job(t, "job-1")
	assertStages(t, job, jobstore.StageNotStarted, jobstore.StageNotStarted)
	if job.Status != jobstore.JobPending || job.Stages[0].CompletedAt != nil {
		t.Fatalf("unexpected job after reset: %+v", job)
	}
	testsupport.AssertMissing(t, h.outputPath("job-1", "enhance"))
	testsupport.AssertMissing(t, h.outputPath("job-1", "cover-letter"))
	archived, err := os.ReadDir(h.layout.HistoryDir("job-1", "enhance"))
	if err != nil || len(archived) != 2 {
		t.Fatalf("expected instruction and output archived, got %d entries (err=%v)", len(archived), err)
	}

	resets := h.events(t, "job-1", jobstore.ActionReset)
	if len(resets) != 2 || resets[0].Actor != "alice" || resets[0].Detail != "rewrite with new notes" {
		t.Fatalf("unexpected reset events: %+v", resets)
	}

	if got := h.advance(t, "job-1"); got.Issued != "enhance" {
		t.Fatalf("expected enhance to be reissued, got %+v", got)
	}
	if got := h.advance(t, "job-1"); got.Outcome != workflow.OutcomePending {
		t.Fatalf("archived output must not complete the reissued stage, got %+v", got)
	}

	err = h.operator.ResetStage(ctx, "job-1", "cover-letter", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error resetting an untouched stage, got %v", err)
	}
	if err := h.operator.ResetStage(ctx, "job-1", "nope", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown stage, got %v", err)
	}
}

func TestResetFailedStageRevivesJob(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	h.writeOutput(t, "job-1", "enhance", "")
	h.advance(t, "job-1")
	if job := h.job(t, "job-1"); job.Status != jobstore.JobFailed {
		t.Fatalf("setup: expected failed job, got %s", job.Status)
	}

	if err := h.operator.ResetStage(context.Background(), "job-1", "enhance", "retry"); err != nil {
		t.Fatalf("ResetStage: %v", err)
	}
	job := h.job(t, "job-1")
	if job.Status != jobstore.JobPending || job.Stages[0].Error != "" {
		t.Fatalf("expected job revived, got %+v", job)
	}
}

func TestForceStage(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	ctx := context.Background()

	err := h.operator.ForceStage(ctx, "job-1", "cover-letter", jobstore.StageCompleted, "skip")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error forcing past an incomplete stage, got %v", err)
	}
	if err := h.operator.ForceStage(ctx, "job-1", "enhance", jobstore.StageNotStarted, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unsupported target, got %v", err)
	}

	h.writeOutput(t, "job-1", "enhance", enhancedResume)
	if err := h.operator.ForceStage(ctx, "job-1", "enhance", jobstore.StageCompleted, "reviewed by hand"); err != nil {
		t.Fatalf("ForceStage completed: %v", err)
	}
	assertStages(t, h.job(t, "job-1"), jobstore.StageCompleted, jobstore.StageNotStarted)
	if got := h.advance(t, "job-1"); got.Issued != "cover-letter" {
		t.Fatalf("expected cover letter issued after force, got %+v", got)
	}

	if err := h.operator.ForceStage(ctx, "job-1", "cover-letter", jobstore.StageFailed, "agent gave up"); err != nil {
		t.Fatalf("ForceStage failed: %v", err)
	}
	job := h.job(t, "job-1")
	if job.Status != jobstore.JobFailed || job.Stages[1].Error != "agent gave up" {
		t.Fatalf("unexpected job after forced failure: %+v", job)
	}
	if err := h.operator.ForceStage(ctx, "job-1", "cover-letter", jobstore.StageFailed, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error failing a failed stage, got %v", err)
	}
	if got := len(h.events(t, "job-1", jobstore.ActionForce)); got != 2 {
		t.Fatalf("expected 2 force events, got %d", got)
	}
}

func TestAcceptOutput(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	ctx := context.Background()

	if _, err := h.operator.AcceptOutput(ctx, "job-1", "enhance", []byte("no heading")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected invalid content rejected, got %v", err)
	}
	testsupport.AssertMissing(t, h.outputPath("job-1", "enhance"))

	if _, err := h.operator.AcceptOutput(ctx, "job-1", "cover-letter", []byte(coverLetter)); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected not-started stage rejected, got %v", err)
	}

	result, err := h.operator.AcceptOutput(ctx, "job-1", "enhance", []byte(enhancedResume))
	if err != nil {
		t.Fatalf("AcceptOutput: %v", err)
	}
	if result.Outcome != workflow.OutcomeAdvanced || result.Issued != "cover-letter" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := testsupport.ReadFile(t, h.outputPath("job-1", "enhance")); got != enhancedResume {
		t.Fatalf("unexpected accepted output: %q", got)
	}
	if len(h.events(t, "job-1", jobstore.ActionAccept)) != 1 {
		t.Fatal("expected accept event")
	}
}

func TestReissueInstruction(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	ctx := context.Background()
	path := h.instructionPath("job-1", "enhance")
	original := testsupport.ReadFile(t, path)

	written, err := h.operator.ReissueInstruction(ctx, "job-1", "enhance")
	if err != nil || written {
		t.Fatalf("expected unchanged reissue, written=%v err=%v", written, err)
	}

	testsupport.WriteFile(t, path, "scribbled over")
	written, err = h.operator.ReissueInstruction(ctx, "job-1", "enhance")
	if err != nil || !written {
		t.Fatalf("expected rewrite, written=%v err=%v", written, err)
	}
	if got := testsupport.ReadFile(t, path); got != original {
		t.Fatal("reissued instruction differs from original")
	}
	assertStages(t, h.job(t, "job-1"), jobstore.StageInstructionWritten, jobstore.StageNotStarted)
	if len(h.events(t, "job-1", jobstore.ActionReissue)) != 2 {
		t.Fatal("expected two reissue events")
	}

	if _, err := h.operator.ReissueInstruction(ctx, "job-1", "cover-letter"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for not-started stage, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	ctx := context.Background()

	if err := h.operator.Cancel(ctx, "job-1", "candidate withdrew"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := h.operator.Cancel(ctx, "job-1", "again"); err != nil {
		t.Fatalf("second Cancel should be a no-op: %v", err)
	}
	h.writeOutput(t, "job-1", "enhance", enhancedResume)
	if got := h.advance(t, "job-1"); got.Outcome != workflow.OutcomeCancelled {
		t.Fatalf("expected cancelled, got %+v", got)
	}
	if job := h.job(t, "job-1"); job.Stages[0].Status != jobstore.StageInstructionWritten {
		t.Fatal("cancelled job must not advance")
	}

	completeJob(t, h, "job-2")
	if err := h.operator.Cancel(ctx, "job-2", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error cancelling completed job, got %v", err)
	}
	if err := h.operator.Cancel(ctx, "ghost", ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAnalyzeCachesReport(t *testing.T) {
	h := newHarness(t)
	completeJob(t, h, "job-1")
	ctx := context.Background()

	report, cached, err := h.operator.Analyze(ctx, "job-1", false)
	if err != nil || cached {
		t.Fatalf("first Analyze: cached=%v err=%v", cached, err)
	}
	if report.Enhanced == nil {
		t.Fatal("expected enhanced resume to be scored")
	}
	if job := h.job(t, "job-1"); job.CachedAnalysis == "" {
		t.Fatal("expected cached analysis on job")
	}

	again, cached, err := h.operator.Analyze(ctx, "job-1", false)
	if err != nil || !cached || again.Resume.Value != report.Resume.Value {
		t.Fatalf("expected cached report, cached=%v err=%v", cached, err)
	}
	if _, cached, err := h.operator.Analyze(ctx, "job-1", true); err != nil || cached {
		t.Fatalf("refresh must recompute, cached=%v err=%v", cached, err)
	}

	if err := h.operator.ClearAnalysis(ctx, "job-1"); err != nil {
		t.Fatalf("ClearAnalysis: %v", err)
	}
	if job := h.job(t, "job-1"); job.CachedAnalysis != "" {
		t.Fatal("expected cached analysis cleared")
	}
}

func TestRemoveKeepsWorkspace(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "job-1")
	if err := h.operator.Remove(context.Background(), "job-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !fileExists(h.instructionPath("job-1", "enhance")) {
		t.Fatal("workspace must be retained after remove")
	}
	if _, err := h.detector.CheckAndAdvance(context.Background(), "job-1"); !errors.Is(err, services.ErrStaleJob) {
		t.Fatalf("expected stale job after remove, got %v", err)
	}
}

func TestOperatorWaitsForJobLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.LockTimeout = 1
	h := newHarnessFromConfig(t, cfg)
	h.submit(t, "job-1")

	lock := flock.New(h.layout.LockPath("job-1"))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	err = h.operator.Cancel(context.Background(), "job-1", "")
	if !errors.Is(err, services.ErrTransient) || !strings.Contains(err.Error(), "locked") {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := h.operator.Cancel(context.Background(), "job-1", ""); err != nil {
		t.Fatalf("Cancel after unlock: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.layout.JobDir("job-1"), ".lock")); err != nil {
		t.Fatalf("expected lock file in job dir: %v", err)
	}
}

func TestOperatorLeavesDiskAloneForUnknownJobs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.operator.Cancel(ctx, "typo-job", "x"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Cancel unknown job: expected not found, got %v", err)
	}
	if _, err := os.Stat(h.layout.JobDir("typo-job")); !os.IsNotExist(err) {
		t.Fatalf("expected no workspace directory for unknown job, stat err=%v", err)
	}

	if err := h.operator.ClearAnalysis(ctx, "../escaped"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("ClearAnalysis with traversal id: expected validation error, got %v", err)
	}
	escaped := filepath.Join(filepath.Dir(h.layout.Root), "escaped")
	if _, err := os.Stat(escaped); !os.IsNotExist(err) {
		t.Fatalf("expected nothing created outside the workspace root, stat err=%v", err)
	}
}
