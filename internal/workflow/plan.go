package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/workspace"
)

// plan collects the transitions of one invocation before they are committed.
type plan struct {
	result      Result
	transitions []jobstore.Transition
	// written is the instruction this invocation changed on disk. When the
	// commit does not happen it is removed, or restored to previous when a
	// file was already there.
	written  string
	previous []byte
}

func (p *plan) rollback(logger *slog.Logger) {
	if p == nil || p.written == "" {
		return
	}
	var err error
	if p.previous != nil {
		_, err = workspace.WriteInstructionAtomically(p.written, p.previous)
	} else {
		err = workspace.RemoveInstruction(p.written)
	}
	if err != nil {
		logging.WarnWithContext(logger, "failed to undo uncommitted instruction", "instruction_rollback_failed",
			logging.String("path", p.written),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "reissue the instruction once the stage settles"),
		)
	}
	p.written, p.previous = "", nil
}

func (p *plan) fail(stage jobstore.StageState, from jobstore.StageStatus, reason string) {
	p.transitions = append(p.transitions, jobstore.Transition{
		StageIndex: stage.Index,
		From:       from,
		To:         jobstore.StageFailed,
		Error:      reason,
	})
	p.result.Failed = stage.Name
	p.result.Outcome = OutcomeFailed
}

// plan walks forward from the active stage. It completes stages whose output
// is present and valid, stops at the first stage still waiting on the agent,
// and issues at most one instruction.
func (d *Detector) plan(job *jobstore.Job) (*plan, error) {
	p := &plan{result: Result{JobID: job.ID, Version: job.Version}}
	for i := job.ActiveStage(); i >= 0 && i < len(job.Stages); i++ {
		state := job.Stages[i]
		p.result.ActiveStage = state.Name
		def, err := d.stageDefinition(state.Name)
		if err != nil {
			return p, err
		}
		switch state.Status {
		case jobstore.StageInstructionWritten:
			completed, err := d.planCompletion(p, job, state, def)
			if err != nil || !completed {
				return p, err
			}
		case jobstore.StageNotStarted:
			return p, d.planInstruction(p, job, state, def)
		default:
			return p, nil
		}
	}
	p.result.ActiveStage = ""
	return p, nil
}

func (d *Detector) planCompletion(p *plan, job *jobstore.Job, state jobstore.StageState, def pipeline.Stage) (bool, error) {
	path := d.layout.OutputPath(job.ID, state.Name, def.OutputArtifact)
	ready, err := d.outputReady(path)
	if err != nil {
		return false, err
	}
	var content []byte
	if ready {
		content, ready, err = workspace.ReadOutputIfPresent(path)
		if err != nil {
			return false, err
		}
	}
	if !ready {
		p.result.Stalled, p.result.StalledFor = d.stalled(state)
		if p.result.Stalled && d.failStalled {
			p.fail(state, jobstore.StageInstructionWritten,
				fmt.Sprintf("stalled: no output after %s", p.result.StalledFor.Truncate(time.Second)))
			return false, nil
		}
		if p.result.Outcome == "" {
			p.result.Outcome = OutcomePending
		}
		return false, nil
	}

	if err := def.Validate(content); err != nil {
		if !errors.Is(err, services.ErrValidation) {
			return false, err
		}
		p.fail(state, jobstore.StageInstructionWritten, err.Error())
		return false, nil
	}
	p.transitions = append(p.transitions, jobstore.Transition{
		StageIndex: state.Index,
		From:       jobstore.StageInstructionWritten,
		To:         jobstore.StageCompleted,
		Detail:     workspace.RelOutputPath(job.ID, state.Name, def.OutputArtifact),
	})
	p.result.Completed = append(p.result.Completed, state.Name)
	p.result.Outcome = OutcomeAdvanced
	return true, nil
}

func (d *Detector) planInstruction(p *plan, job *jobstore.Job, state jobstore.StageState, def pipeline.Stage) error {
	content, err := d.buildInstruction(job, state, def)
	if err != nil {
		if !errors.Is(err, services.ErrValidation) {
			return err
		}
		p.fail(state, jobstore.StageNotStarted, err.Error())
		return nil
	}
	path := d.layout.InstructionPath(job.ID, state.Name)
	previous, existed, err := workspace.ReadOutputIfPresent(path)
	if err != nil {
		return err
	}
	written, err := workspace.WriteInstructionAtomically(path, []byte(content))
	if err != nil {
		return err
	}
	if written {
		p.written = path
		if existed {
			p.previous = previous
			if p.previous == nil {
				p.previous = []byte{}
			}
		}
	}
	p.transitions = append(p.transitions, jobstore.Transition{
		StageIndex: state.Index,
		From:       jobstore.StageNotStarted,
		To:         jobstore.StageInstructionWritten,
		Detail:     workspace.RelInstructionPath(job.ID, state.Name),
	})
	p.result.Issued = state.Name
	if p.result.Outcome == "" {
		p.result.Outcome = OutcomeInstructionIssued
	}
	return nil
}

// buildInstruction renders a stage's instruction from the job input and the
// outputs of the earlier stages it depends on.
func (d *Detector) buildInstruction(job *jobstore.Job, state jobstore.StageState, def pipeline.Stage) (string, error) {
	outputs := make(map[string]string, len(def.Inputs))
	for _, name := range def.Inputs {
		if job.StageIndex(name) < 0 {
			continue
		}
		prior, err := d.stageDefinition(name)
		if err != nil {
			return "", err
		}
		content, present, err := workspace.ReadOutputIfPresent(d.layout.OutputPath(job.ID, name, prior.OutputArtifact))
		if err != nil {
			return "", err
		}
		if present {
			outputs[name] = string(content)
		}
	}
	return def.Build(pipeline.Context{
		JobID:      job.ID,
		Input:      job.Input,
		Outputs:    outputs,
		OutputPath: workspace.RelOutputPath(job.ID, state.Name, def.OutputArtifact),
	})
}
