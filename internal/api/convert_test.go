package api

import (
	"testing"
	"time"

	"tailor/internal/analysis"
	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/pipeline"
	"tailor/internal/workflow"
)

func TestFromJobDerivesPaths(t *testing.T) {
	written := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	job := &jobstore.Job{
		ID:             "job-1",
		Status:         jobstore.JobRunning,
		Version:        3,
		CachedAnalysis: `{"resume":{}}`,
		Input:          jobstore.Input{ResumeText: "r", JobDescription: "jd", Company: "Acme"},
		Stages: []jobstore.StageState{
			{Index: 0, Name: "enhance", Status: jobstore.StageCompleted, CompletedAt: &written},
			{Index: 1, Name: "cover-letter", Status: jobstore.StageInstructionWritten, InstructionWrittenAt: &written},
			{Index: 2, Name: "legacy", Status: jobstore.StageNotStarted},
		},
	}
	stages, err := pipeline.Default(config.Pipeline{})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	dto := FromJob(job, stages)

	if dto.ActiveStage != "cover-letter" || !dto.HasAnalysis || dto.Input.Company != "Acme" {
		t.Fatalf("unexpected job dto: %+v", dto)
	}
	if got := dto.Stages[1].InstructionPath; got != "job-1/cover-letter/INSTRUCTIONS.md" {
		t.Fatalf("unexpected instruction path %q", got)
	}
	if got := dto.Stages[0].OutputPath; got != "job-1/enhance/enhanced.md" {
		t.Fatalf("unexpected output path %q", got)
	}
	if dto.Stages[2].OutputPath != "" {
		t.Fatal("unknown stage must not get an output path")
	}
	if got := dto.Stages[0].CompletedAt; got != "2026-03-01T09:00:00.000Z" {
		t.Fatalf("expected UTC timestamp, got %q", got)
	}
	if dto.Stages[2].CompletedAt != "" {
		t.Fatal("unset timestamps must be omitted")
	}
}

func TestFromStatusSummary(t *testing.T) {
	last := workflow.Result{JobID: "a", Outcome: workflow.OutcomePending, Stalled: true, StalledFor: 90*time.Minute + 300*time.Millisecond}
	status := FromStatusSummary(workflow.StatusSummary{
		Running:    true,
		LastResult: &last,
		JobStats:   map[jobstore.JobStatus]int{jobstore.JobRunning: 2},
		Stalled:    []workflow.Result{last},
	})
	if !status.Running || status.JobStats["running"] != 2 || status.LastPoll != "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.LastResult == nil || status.LastResult.StalledFor != "1h30m0s" {
		t.Fatalf("unexpected last result: %+v", status.LastResult)
	}
	if len(status.Stalled) != 1 {
		t.Fatalf("expected one stalled entry, got %d", len(status.Stalled))
	}
}

func TestFromReport(t *testing.T) {
	report := analysis.Report{
		Resume:     analysis.Score{Value: 40},
		Enhanced:   &analysis.Score{Value: 65, Matched: []string{"go"}},
		ComputedAt: time.Unix(0, 0),
	}
	dto := FromReport("job-1", report, true)
	if dto.Delta != 25 || !dto.Cached || dto.Enhanced == nil || dto.Enhanced.Matched[0] != "go" {
		t.Fatalf("unexpected analysis dto: %+v", dto)
	}
}
