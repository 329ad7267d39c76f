package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/workspace"
)

// Outcome classifies what one CheckAndAdvance call observed or did.
type Outcome string

const (
	OutcomeTerminal          Outcome = "terminal"
	OutcomeCancelled         Outcome = "cancelled"
	OutcomePending           Outcome = "pending"
	OutcomeInstructionIssued Outcome = "instruction_issued"
	OutcomeAdvanced          Outcome = "advanced"
	OutcomeFailed            Outcome = "failed"
)

// Result reports the effect of one CheckAndAdvance call.
type Result struct {
	JobID   string
	Outcome Outcome
	// ActiveStage is the first stage not completed after the call, empty when
	// every stage is completed.
	ActiveStage string
	Completed   []string
	Issued      string
	Failed      string
	Stalled     bool
	StalledFor  time.Duration
	Version     int64
}

// Detector implements CheckAndAdvance.
type Detector struct {
	store    *jobstore.Store
	layout   workspace.Layout
	pipeline *pipeline.Pipeline
	locks    *jobLocks
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time

	stallTimeout time.Duration
	failStalled  bool
	settle       time.Duration

	// test hooks
	afterSnapshot func(jobID string)
	beforeCommit  func(jobID string)
}

// DetectorOption configures optional Detector behavior.
type DetectorOption func(*Detector)

// WithMetrics records detector activity on m.
func WithMetrics(m *Metrics) DetectorOption {
	return func(d *Detector) { d.metrics = m }
}

// WithClock replaces the wall clock used for stall and settle decisions.
func WithClock(now func() time.Time) DetectorOption {
	return func(d *Detector) { d.now = now }
}

// NewDetector constructs a detector over the configured workspace.
func NewDetector(cfg *config.Config, store *jobstore.Store, pipe *pipeline.Pipeline, logger *slog.Logger, opts ...DetectorOption) *Detector {
	layout := workspace.New(cfg.Paths.WorkspaceRoot)
	d := &Detector{
		store:        store,
		layout:       layout,
		pipeline:     pipe,
		locks:        newJobLocks(layout, cfg.Workflow.LockTimeoutDuration()),
		logger:       logging.NewComponentLogger(logger, "detector"),
		now:          func() time.Time { return time.Now().UTC() },
		stallTimeout: cfg.Workflow.StallTimeoutDuration(),
		failStalled:  cfg.Workflow.FailStalled,
		settle:       cfg.Workflow.OutputSettleDuration(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Layout returns the workspace layout the detector writes into.
func (d *Detector) Layout() workspace.Layout { return d.layout }

// Pipeline returns the stage definitions.
func (d *Detector) Pipeline() *pipeline.Pipeline { return d.pipeline }

// CheckAndAdvance inspects a job and performs every transition that is due:
// it writes the active stage's instruction, completes a stage whose output
// arrived and issues the next instruction in the same call, or fails a stage
// whose output is invalid. With nothing new on disk it returns a pending
// result and changes nothing.
//
// Errors are classified with the services markers: ErrStaleJob when the job is
// gone, ErrConflict when another writer got there first (retry), ErrIO for
// workspace failures (retry), ErrConfiguration when a stage has no definition.
func (d *Detector) CheckAndAdvance(ctx context.Context, jobID string) (Result, error) {
	ctx = services.WithJobID(ctx, jobID)
	result, err := d.checkAndAdvance(ctx, jobID)
	if err != nil {
		d.metrics.observeError(services.FailureKind(err))
		return result, err
	}
	d.metrics.observeResult(result)
	return result, nil
}

func (d *Detector) checkAndAdvance(ctx context.Context, jobID string) (Result, error) {
	result := Result{JobID: jobID}
	snapshot, err := d.load(ctx, jobID)
	if err != nil {
		return result, err
	}
	result.Version = snapshot.Version
	switch {
	case snapshot.Cancelled:
		result.Outcome = OutcomeCancelled
		return result, nil
	case snapshot.IsTerminal():
		result.Outcome = OutcomeTerminal
		return result, nil
	}

	active := snapshot.Stages[snapshot.ActiveStage()]
	result.ActiveStage = active.Name
	if active.Status == jobstore.StageInstructionWritten {
		def, err := d.stageDefinition(active.Name)
		if err != nil {
			return result, err
		}
		ready, err := d.outputReady(d.layout.OutputPath(jobID, active.Name, def.OutputArtifact))
		if err != nil {
			return result, err
		}
		if !ready {
			result.Stalled, result.StalledFor = d.stalled(active)
			if !result.Stalled || !d.failStalled {
				result.Outcome = OutcomePending
				return result, nil
			}
		}
	}

	if d.afterSnapshot != nil {
		d.afterSnapshot(jobID)
	}
	return d.advance(ctx, snapshot)
}

func (d *Detector) advance(ctx context.Context, snapshot *jobstore.Job) (Result, error) {
	result := Result{JobID: snapshot.ID, Version: snapshot.Version}
	release, err := d.locks.acquire(ctx, snapshot.ID)
	if err != nil {
		return result, err
	}
	defer release()

	job, err := d.load(ctx, snapshot.ID)
	if err != nil {
		return result, err
	}
	if job.Version != snapshot.Version {
		return result, services.Wrap(services.ErrConflict, "", "check and advance",
			fmt.Sprintf("job %s changed from version %d to %d", job.ID, snapshot.Version, job.Version), nil)
	}

	logger := logging.WithContext(ctx, d.logger)
	p, err := d.plan(job)
	if err != nil {
		p.rollback(logger)
		return p.result, err
	}
	if len(p.transitions) == 0 {
		return p.result, nil
	}

	if d.beforeCommit != nil {
		d.beforeCommit(job.ID)
	}
	version, err := d.store.Commit(ctx, jobstore.Commit{
		JobID:          job.ID,
		ExpectVersion:  job.Version,
		Transitions:    p.transitions,
		Actor:          services.ActorFromContext(ctx, jobstore.ActorDetector),
		ClearLastError: true,
	})
	if err != nil {
		p.rollback(logger)
		return p.result, err
	}
	p.result.Version = version
	d.report(logger, job, p)
	return p.result, nil
}

func (d *Detector) load(ctx context.Context, jobID string) (*jobstore.Job, error) {
	job, err := d.store.Get(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "load job", jobID, err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrStaleJob, "", "load job", fmt.Sprintf("job %s no longer exists", jobID), nil)
	}
	return job, nil
}

func (d *Detector) stageDefinition(name string) (pipeline.Stage, error) {
	def, ok := d.pipeline.Lookup(name)
	if !ok {
		return pipeline.Stage{}, services.Wrap(services.ErrConfiguration, name, "lookup stage", "stage is not defined in the pipeline", nil)
	}
	return def, nil
}

// outputReady reports whether the artifact exists and is older than the
// settle window.
func (d *Detector) outputReady(path string) (bool, error) {
	present, modTime, err := workspace.OutputInfo(path)
	if err != nil || !present {
		return false, err
	}
	if d.settle > 0 && d.now().Sub(modTime) < d.settle {
		return false, nil
	}
	return true, nil
}

func (d *Detector) stalled(stage jobstore.StageState) (bool, time.Duration) {
	if d.stallTimeout <= 0 || stage.InstructionWrittenAt == nil {
		return false, 0
	}
	age := d.now().Sub(*stage.InstructionWrittenAt)
	return age >= d.stallTimeout, age
}

func (d *Detector) report(logger *slog.Logger, job *jobstore.Job, p *plan) {
	for _, tr := range p.transitions {
		name := job.Stages[tr.StageIndex].Name
		d.metrics.observeTransition(name, string(tr.To))
		stageLogger := logger.With(logging.Stage(name))
		switch tr.To {
		case jobstore.StageCompleted:
			stageLogger.Info("stage completed",
				logging.String("output", tr.Detail),
				logging.String(logging.FieldEventType, "stage_completed"),
			)
		case jobstore.StageInstructionWritten:
			stageLogger.Info("instruction issued",
				logging.String("instruction", tr.Detail),
				logging.String(logging.FieldEventType, "instruction_issued"),
			)
		case jobstore.StageFailed:
			logging.WarnWithContext(stageLogger, "stage failed", "stage_failed",
				logging.String("reason", tr.Error),
				logging.String(logging.FieldErrorHint, "inspect the stage output, then reset or force the stage"),
				logging.String(logging.FieldImpact, "job will not advance until an operator intervenes"),
				logging.Alert("stage_failure"),
			)
		}
	}
}
