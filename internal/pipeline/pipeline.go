package pipeline

import (
	"fmt"
	"strings"

	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/services"
	"tailor/internal/workspace"
)

// Stage names used by the default pipeline.
const (
	StageEnhance     = "enhance"
	StageCoverLetter = "cover-letter"
	StageRender      = "render"
)

// Context carries the data an instruction builder needs.
type Context struct {
	JobID string
	Input jobstore.Input
	// Outputs holds the content of earlier completed stages keyed by stage name.
	Outputs map[string]string
	// OutputPath is the workspace-relative path the agent must write.
	OutputPath string
}

// Stage describes one step of the pipeline.
type Stage struct {
	Name           string
	OutputArtifact string
	Optional       bool
	// Inputs names earlier stages whose outputs are handed to Build.
	Inputs   []string
	Build    func(Context) (string, error)
	Validate func([]byte) error
}

// Pipeline is an immutable ordered list of stages.
type Pipeline struct {
	stages []Stage
	index  map[string]int
}

// New checks the stage definitions and returns a pipeline.
func New(stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "", "pipeline", "no stages defined", nil)
	}
	p := &Pipeline{stages: make([]Stage, 0, len(stages)), index: make(map[string]int, len(stages))}
	for i, stage := range stages {
		if err := workspace.ValidateSegment("stage name", stage.Name); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline", "invalid stage name", err)
		}
		if _, dup := p.index[stage.Name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline", "duplicate stage", nil)
		}
		if err := workspace.ValidateSegment("artifact name", stage.OutputArtifact); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline", "invalid output artifact", err)
		}
		if strings.EqualFold(stage.OutputArtifact, workspace.InstructionFileName) {
			return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline", "output artifact collides with instruction file", nil)
		}
		if stage.Build == nil || stage.Validate == nil {
			return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline", "builder and validator are required", nil)
		}
		for _, input := range stage.Inputs {
			if _, ok := p.index[input]; !ok {
				return nil, services.Wrap(services.ErrConfiguration, stage.Name, "pipeline",
					fmt.Sprintf("input %q is not an earlier stage", input), nil)
			}
		}
		p.index[stage.Name] = i
		p.stages = append(p.stages, stage)
	}
	return p, nil
}

// Default builds the standard pipeline from configuration.
func Default(cfg config.Pipeline) (*Pipeline, error) {
	stages := []Stage{enhanceStage(cfg), coverLetterStage(cfg)}
	if cfg.RenderDocuments {
		stages = append(stages, renderStage(cfg))
	}
	return New(stages...)
}

// Stages returns a copy of the ordered stage list.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Names returns the ordered stage names, the snapshot stored on new jobs.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name
	}
	return names
}

// Lookup returns the stage with the given name.
func (p *Pipeline) Lookup(name string) (Stage, bool) {
	idx, ok := p.index[name]
	if !ok {
		return Stage{}, false
	}
	return p.stages[idx], true
}

// Artifacts lists the files a stage directory may hold, instruction first.
func (s Stage) Artifacts() []string {
	return []string{workspace.InstructionFileName, s.OutputArtifact}
}
