package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"tailor/internal/analysis"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/workspace"
)

// Operator performs audited manual actions. Every action holds the per-job
// lock, so it serializes with the detector in this and other processes.
type Operator struct {
	detector *Detector
	store    *jobstore.Store
	logger   *slog.Logger
}

// NewOperator wraps the detector's store and locks.
func NewOperator(detector *Detector, logger *slog.Logger) *Operator {
	return &Operator{
		detector: detector,
		store:    detector.store,
		logger:   logging.NewComponentLogger(logger, "operator"),
	}
}

// Submission is a request to create a job.
type Submission struct {
	ID    string
	Input jobstore.Input
}

// Submit creates a job for every pipeline stage, prepares its workspace, and
// issues the first instruction. A failure to issue the instruction is
// recorded on the job and left for the poller; the job is still returned.
func (o *Operator) Submit(ctx context.Context, sub Submission) (*jobstore.Job, Result, error) {
	actor := services.ActorFromContext(ctx, jobstore.ActorOperator)
	stages := o.detector.pipeline.Names()
	job, err := o.store.Create(ctx, jobstore.NewJob{ID: sub.ID, Input: sub.Input, Stages: stages, Actor: actor})
	if err != nil {
		return nil, Result{}, err
	}
	logger := o.jobLogger(ctx, job.ID)
	if err := o.detector.layout.EnsureJobDirectory(job.ID, stages); err != nil {
		if _, removeErr := o.store.Remove(ctx, job.ID); removeErr != nil {
			logger.Warn("failed to remove job after workspace error", logging.Error(removeErr))
		}
		return nil, Result{}, err
	}
	logger.Info("job created",
		logging.Int("stages", len(stages)),
		logging.String(logging.FieldActor, actor),
		logging.String(logging.FieldEventType, "job_created"),
	)

	result, err := o.detector.CheckAndAdvance(ctx, job.ID)
	if err != nil {
		logging.WarnWithContext(logger, "first instruction not issued", "instruction_deferred",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the poller retries; check workspace permissions if it persists"),
			logging.String(logging.FieldImpact, "agent cannot start until the instruction exists"),
		)
		if recordErr := o.store.RecordError(ctx, job.ID, err.Error()); recordErr != nil {
			logger.Warn("failed to record job error", logging.Error(recordErr))
		}
	}
	current, err := o.store.Get(ctx, job.ID)
	if err != nil {
		return job, result, err
	}
	if current != nil {
		job = current
	}
	return job, result, nil
}

// ResetStage returns the named stage and every later stage to not started,
// archiving their artifacts so stale output cannot complete a re-issued
// stage. The next CheckAndAdvance issues a fresh instruction.
func (o *Operator) ResetStage(ctx context.Context, jobID, stage, reason string) error {
	return o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		idx, err := stageIndex(job, stage)
		if err != nil {
			return err
		}
		if job.Cancelled {
			return services.Wrap(services.ErrValidation, stage, "reset stage", "job is cancelled", nil)
		}
		var transitions []jobstore.Transition
		now := o.detector.now()
		for i := idx; i < len(job.Stages); i++ {
			state := job.Stages[i]
			if state.Status == jobstore.StageNotStarted {
				continue
			}
			names := []string{workspace.InstructionFileName}
			if def, ok := o.detector.pipeline.Lookup(state.Name); ok {
				names = def.Artifacts()
			}
			if _, err := o.detector.layout.ArchiveArtifacts(job.ID, state.Name, names, now); err != nil {
				return err
			}
			transitions = append(transitions, jobstore.Transition{
				StageIndex: i,
				From:       state.Status,
				To:         jobstore.StageNotStarted,
				Detail:     reason,
			})
		}
		if len(transitions) == 0 {
			return services.Wrap(services.ErrValidation, stage, "reset stage", "stage and later stages are already not started", nil)
		}
		return o.commit(ctx, job, jobstore.ActionReset, transitions)
	})
}

// ForceStage sets a stage to completed or failed by hand. Completing requires
// every earlier stage to be completed; failing requires the stage not to be
// terminal already.
func (o *Operator) ForceStage(ctx context.Context, jobID, stage string, target jobstore.StageStatus, reason string) error {
	return o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		idx, err := stageIndex(job, stage)
		if err != nil {
			return err
		}
		if job.Cancelled {
			return services.Wrap(services.ErrValidation, stage, "force stage", "job is cancelled", nil)
		}
		current := job.Stages[idx]
		switch target {
		case jobstore.StageCompleted:
			for _, prior := range job.Stages[:idx] {
				if prior.Status != jobstore.StageCompleted {
					return services.Wrap(services.ErrValidation, stage, "force stage",
						fmt.Sprintf("earlier stage %s is %s", prior.Name, prior.Status), nil)
				}
			}
			if current.Status == jobstore.StageCompleted {
				return services.Wrap(services.ErrValidation, stage, "force stage", "stage is already completed", nil)
			}
		case jobstore.StageFailed:
			if current.Status.IsTerminal() {
				return services.Wrap(services.ErrValidation, stage, "force stage",
					fmt.Sprintf("stage is already %s", current.Status), nil)
			}
		default:
			return services.Wrap(services.ErrValidation, stage, "force stage",
				fmt.Sprintf("cannot force to %q; use completed or failed", target), nil)
		}
		tr := jobstore.Transition{StageIndex: idx, From: current.Status, To: target, Detail: reason}
		if target == jobstore.StageFailed {
			tr.Error = firstNonEmpty(reason, "failed by operator")
		}
		return o.commit(ctx, job, jobstore.ActionForce, []jobstore.Transition{tr})
	})
}

// AcceptOutput places content as the output artifact of a stage waiting on the
// agent, then runs the detector. Content that fails the stage validator is
// rejected without touching the workspace.
func (o *Operator) AcceptOutput(ctx context.Context, jobID, stage string, content []byte) (Result, error) {
	err := o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		idx, err := stageIndex(job, stage)
		if err != nil {
			return err
		}
		if job.Cancelled || job.IsTerminal() {
			return services.Wrap(services.ErrValidation, stage, "accept output", "job is not active", nil)
		}
		if status := job.Stages[idx].Status; status != jobstore.StageInstructionWritten {
			return services.Wrap(services.ErrValidation, stage, "accept output",
				fmt.Sprintf("stage is %s, expected %s", status, jobstore.StageInstructionWritten), nil)
		}
		def, err := o.detector.stageDefinition(stage)
		if err != nil {
			return err
		}
		if err := def.Validate(content); err != nil {
			return err
		}
		path := o.detector.layout.OutputPath(job.ID, stage, def.OutputArtifact)
		if err := workspace.WriteOutputAtomically(path, content); err != nil {
			return err
		}
		return o.store.AppendEvent(ctx, jobstore.Event{
			JobID:      job.ID,
			StageIndex: idx,
			Stage:      stage,
			Action:     jobstore.ActionAccept,
			Actor:      services.ActorFromContext(ctx, jobstore.ActorOperator),
			Detail:     workspace.RelOutputPath(job.ID, stage, def.OutputArtifact),
		}, 0)
	})
	if err != nil {
		return Result{JobID: jobID}, err
	}
	return o.detector.CheckAndAdvance(ctx, jobID)
}

// ReissueInstruction rebuilds and rewrites the instruction of a stage that is
// waiting on the agent. The stage status does not change. It reports whether
// the file content changed.
func (o *Operator) ReissueInstruction(ctx context.Context, jobID, stage string) (bool, error) {
	var written bool
	err := o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		idx, err := stageIndex(job, stage)
		if err != nil {
			return err
		}
		state := job.Stages[idx]
		if state.Status != jobstore.StageInstructionWritten {
			return services.Wrap(services.ErrValidation, stage, "reissue instruction",
				fmt.Sprintf("stage is %s, expected %s", state.Status, jobstore.StageInstructionWritten), nil)
		}
		def, err := o.detector.stageDefinition(stage)
		if err != nil {
			return err
		}
		content, err := o.detector.buildInstruction(job, state, def)
		if err != nil {
			return err
		}
		written, err = workspace.WriteInstructionAtomically(o.detector.layout.InstructionPath(job.ID, stage), []byte(content))
		if err != nil {
			return err
		}
		detail := "unchanged"
		if written {
			detail = "rewritten"
		}
		return o.store.AppendEvent(ctx, jobstore.Event{
			JobID:      job.ID,
			StageIndex: idx,
			Stage:      stage,
			Action:     jobstore.ActionReissue,
			Actor:      services.ActorFromContext(ctx, jobstore.ActorOperator),
			Detail:     detail,
		}, 0)
	})
	return written, err
}

// Cancel sets the job's cancellation flag. Work the agent already started is
// not interrupted; the detector simply stops advancing the job.
func (o *Operator) Cancel(ctx context.Context, jobID, reason string) error {
	return o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		if job.Cancelled {
			return nil
		}
		if job.Status == jobstore.JobCompleted {
			return services.Wrap(services.ErrValidation, "", "cancel job", "job is already completed", nil)
		}
		return o.store.SetCancelled(ctx, job.ID, services.ActorFromContext(ctx, jobstore.ActorOperator), reason)
	})
}

// ClearAnalysis drops the cached analysis.
func (o *Operator) ClearAnalysis(ctx context.Context, jobID string) error {
	return o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		return o.store.ClearCachedAnalysis(ctx, job.ID, services.ActorFromContext(ctx, jobstore.ActorOperator))
	})
}

// Remove deletes the job record. The workspace directory is retained.
func (o *Operator) Remove(ctx context.Context, jobID string) error {
	return o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		if _, err := o.store.Remove(ctx, job.ID); err != nil {
			return err
		}
		o.jobLogger(ctx, job.ID).Info("job removed",
			logging.String("workspace", o.detector.layout.JobDir(job.ID)),
			logging.String(logging.FieldEventType, "job_removed"),
		)
		return nil
	})
}

// Analyze returns the cached match analysis, computing and caching it first
// when absent or when refresh is set. cached reports whether the result came
// from the cache.
func (o *Operator) Analyze(ctx context.Context, jobID string, refresh bool) (report analysis.Report, cached bool, err error) {
	err = o.withJob(ctx, jobID, func(job *jobstore.Job) error {
		if !refresh && job.CachedAnalysis != "" {
			decoded, decodeErr := analysis.Decode(job.CachedAnalysis)
			if decodeErr == nil {
				report, cached = decoded, true
				return nil
			}
			o.jobLogger(ctx, job.ID).Warn("cached analysis unreadable; recomputing", logging.Error(decodeErr))
		}
		enhanced, err := o.enhancedOutput(job)
		if err != nil {
			return err
		}
		computed, err := analysis.Compute(job.Input.ResumeText, enhanced, job.Input.JobDescription, o.detector.now())
		if err != nil {
			return err
		}
		report = computed
		payload, err := analysis.Encode(report)
		if err != nil {
			return err
		}
		return o.store.SetCachedAnalysis(ctx, job.ID, payload, services.ActorFromContext(ctx, jobstore.ActorOperator))
	})
	return report, cached, err
}

func (o *Operator) enhancedOutput(job *jobstore.Job) (string, error) {
	for _, state := range job.Stages {
		if state.Name != pipeline.StageEnhance || state.Status != jobstore.StageCompleted {
			continue
		}
		def, ok := o.detector.pipeline.Lookup(state.Name)
		if !ok {
			continue
		}
		content, present, err := workspace.ReadOutputIfPresent(o.detector.layout.OutputPath(job.ID, state.Name, def.OutputArtifact))
		if err != nil || !present {
			return "", err
		}
		return string(content), nil
	}
	return "", nil
}

func (o *Operator) withJob(ctx context.Context, jobID string, fn func(job *jobstore.Job) error) error {
	if err := workspace.ValidateSegment("job id", jobID); err != nil {
		return err
	}
	ctx = services.WithJobID(ctx, jobID)
	// Unknown ids never reach the lock, which would create their directory.
	if _, err := o.loadJob(ctx, jobID); err != nil {
		return err
	}
	release, err := o.detector.locks.acquire(ctx, jobID)
	if err != nil {
		return err
	}
	defer release()
	job, err := o.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	return fn(job)
}

func (o *Operator) loadJob(ctx context.Context, jobID string) (*jobstore.Job, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "load job", fmt.Sprintf("job %s not found", jobID), nil)
	}
	return job, nil
}

func (o *Operator) commit(ctx context.Context, job *jobstore.Job, action string, transitions []jobstore.Transition) error {
	actor := services.ActorFromContext(ctx, jobstore.ActorOperator)
	_, err := o.store.Commit(ctx, jobstore.Commit{
		JobID:          job.ID,
		Transitions:    transitions,
		Actor:          actor,
		Action:         action,
		Override:       true,
		ClearLastError: true,
	})
	if err != nil {
		return err
	}
	logger := o.jobLogger(ctx, job.ID)
	for _, tr := range transitions {
		o.detector.metrics.observeTransition(job.Stages[tr.StageIndex].Name, string(tr.To))
		logger.Info("stage changed by operator",
			logging.Stage(job.Stages[tr.StageIndex].Name),
			logging.String("action", action),
			logging.String("from", string(tr.From)),
			logging.String("to", string(tr.To)),
			logging.String(logging.FieldActor, actor),
			logging.String(logging.FieldEventType, "operator_"+action),
		)
	}
	return nil
}

func (o *Operator) jobLogger(ctx context.Context, jobID string) *slog.Logger {
	return logging.WithContext(services.WithJobID(ctx, jobID), o.logger)
}

func stageIndex(job *jobstore.Job, stage string) (int, error) {
	idx := job.StageIndex(stage)
	if idx < 0 {
		return -1, services.Wrap(services.ErrNotFound, stage, "lookup stage", fmt.Sprintf("job %s has no stage %q", job.ID, stage), nil)
	}
	return idx, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
