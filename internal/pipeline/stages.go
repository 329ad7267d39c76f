package pipeline

import (
	"strings"

	"tailor/internal/config"
)

func enhanceStage(cfg config.Pipeline) Stage {
	return Stage{
		Name:           StageEnhance,
		OutputArtifact: "enhanced.md",
		Build:          templateBuilder("enhance.md.tmpl", cfg, nil),
		Validate: func(content []byte) error {
			body, err := validateMarkdown(content)
			if err != nil {
				return err
			}
			for _, line := range strings.Split(body, "\n") {
				if strings.HasPrefix(strings.TrimSpace(line), "#") {
					return nil
				}
			}
			return invalidOutput("enhanced resume has no Markdown heading")
		},
	}
}

func coverLetterStage(cfg config.Pipeline) Stage {
	inputs := []string{StageEnhance}
	return Stage{
		Name:           StageCoverLetter,
		OutputArtifact: "cover_letter.md",
		Inputs:         inputs,
		Build:          templateBuilder("cover-letter.md.tmpl", cfg, inputs),
		Validate: func(content []byte) error {
			body, err := validateMarkdown(content)
			if err != nil {
				return err
			}
			if words := len(strings.Fields(body)); words < minCoverLetterWords {
				return invalidOutputf("cover letter has %d words, need at least %d", words, minCoverLetterWords)
			}
			return nil
		},
	}
}

func renderStage(cfg config.Pipeline) Stage {
	inputs := []string{StageEnhance, StageCoverLetter}
	return Stage{
		Name:           StageRender,
		OutputArtifact: "render.json",
		Optional:       true,
		Inputs:         inputs,
		Build:          templateBuilder("render.md.tmpl", cfg, inputs),
		Validate:       validateRenderManifest,
	}
}
