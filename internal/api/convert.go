package api

import (
	"slices"
	"time"

	"tailor/internal/analysis"
	"tailor/internal/jobstore"
	"tailor/internal/pipeline"
	"tailor/internal/workflow"
	"tailor/internal/workspace"
)

// FromJob converts a job record to its API representation. pipe resolves
// output artifact names; stages it does not know have no OutputPath.
func FromJob(job *jobstore.Job, pipe *pipeline.Pipeline) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:          job.ID,
		Status:      string(job.Status),
		Version:     job.Version,
		Cancelled:   job.Cancelled,
		LastError:   job.LastError,
		HasAnalysis: job.CachedAnalysis != "",
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
		Input:       fromInput(job.Input),
		Stages:      make([]Stage, 0, len(job.Stages)),
	}
	if idx := job.ActiveStage(); idx >= 0 {
		dto.ActiveStage = job.Stages[idx].Name
	}
	for _, state := range job.Stages {
		stage := Stage{
			Index:                state.Index,
			Name:                 state.Name,
			Status:               string(state.Status),
			InstructionPath:      workspace.RelInstructionPath(job.ID, state.Name),
			InstructionWrittenAt: formatTimePtr(state.InstructionWrittenAt),
			CompletedAt:          formatTimePtr(state.CompletedAt),
			FailedAt:             formatTimePtr(state.FailedAt),
			Error:                state.Error,
		}
		if pipe != nil {
			if def, ok := pipe.Lookup(state.Name); ok {
				stage.OutputPath = workspace.RelOutputPath(job.ID, state.Name, def.OutputArtifact)
			}
		}
		dto.Stages = append(dto.Stages, stage)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*jobstore.Job, pipe *pipeline.Pipeline) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job, pipe))
	}
	return out
}

func fromInput(in jobstore.Input) JobInput {
	return JobInput{
		CandidateName:  in.CandidateName,
		TargetRole:     in.TargetRole,
		Company:        in.Company,
		ResumeText:     in.ResumeText,
		JobDescription: in.JobDescription,
		Style:          in.Style,
		RenderFormat:   in.RenderFormat,
		Notes:          in.Notes,
	}
}

// FromEvents converts audit events.
func FromEvents(events []jobstore.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, Event{
			ID:        ev.ID,
			JobID:     ev.JobID,
			Stage:     ev.Stage,
			Action:    ev.Action,
			Actor:     ev.Actor,
			From:      string(ev.From),
			To:        string(ev.To),
			Detail:    ev.Detail,
			CreatedAt: formatTime(ev.CreatedAt),
		})
	}
	return out
}

// FromResult converts a detector result.
func FromResult(result workflow.Result) Result {
	dto := Result{
		JobID:       result.JobID,
		Outcome:     string(result.Outcome),
		ActiveStage: result.ActiveStage,
		Completed:   slices.Clone(result.Completed),
		Issued:      result.Issued,
		Failed:      result.Failed,
		Stalled:     result.Stalled,
		Version:     result.Version,
	}
	if result.Stalled {
		dto.StalledFor = result.StalledFor.Truncate(time.Second).String()
	}
	return dto
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:   summary.Running,
		JobStats:  make(map[string]int, len(summary.JobStats)),
		LastError: summary.LastError,
		LastPoll:  formatTime(summary.LastPoll),
	}
	for k, v := range summary.JobStats {
		status.JobStats[string(k)] = v
	}
	if summary.LastResult != nil {
		last := FromResult(*summary.LastResult)
		status.LastResult = &last
	}
	for _, stalled := range summary.Stalled {
		status.Stalled = append(status.Stalled, FromResult(stalled))
	}
	return status
}

// FromReport converts a match analysis.
func FromReport(jobID string, report analysis.Report, cached bool) Analysis {
	dto := Analysis{
		JobID:      jobID,
		Resume:     fromScore(report.Resume),
		Delta:      report.Delta(),
		ComputedAt: formatTime(report.ComputedAt),
		Cached:     cached,
	}
	if report.Enhanced != nil {
		enhanced := fromScore(*report.Enhanced)
		dto.Enhanced = &enhanced
	}
	return dto
}

func fromScore(s analysis.Score) Score {
	return Score{
		Value:      s.Value,
		Coverage:   s.Coverage,
		Similarity: s.Similarity,
		Matched:    slices.Clone(s.Matched),
		Missing:    slices.Clone(s.Missing),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
